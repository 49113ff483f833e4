package controller

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"

	h "github.com/microcosm-cc/pagecache/helpers"
)

// Context carries a single request through a controller
type Context struct {
	Request        *http.Request
	ResponseWriter http.ResponseWriter
	StartTime      time.Time
	IP             net.IP
}

// StandardResponse wraps every JSON response
type StandardResponse struct {
	Context string      `json:"context"`
	Status  int         `json:"status"`
	Data    interface{} `json:"data"`
	Errors  []string    `json:"error"`
}

// MakeContext builds the Context for a request
func MakeContext(request *http.Request, responseWriter http.ResponseWriter) *Context {
	return &Context{
		Request:        request,
		ResponseWriter: responseWriter,
		StartTime:      time.Now(),
		IP:             h.GetRequestIP(request),
	}
}

// GetHTTPMethod returns the request method, allowing POST to be overridden
// by the method query string arg for clients that cannot send DELETE
func (c *Context) GetHTTPMethod() string {
	if c.Request.Method == "POST" {
		if method := c.Request.URL.Query().Get("method"); method != "" {
			return strings.ToUpper(method)
		}
	}
	return c.Request.Method
}

// Respond writes a StandardResponse as JSON
func (c *Context) Respond(data interface{}, statusCode int, errors []string) error {
	obj := StandardResponse{
		Context: c.Request.URL.Query().Get("context"),
		Status:  statusCode,
		Data:    data,
		Errors:  errors,
	}

	c.ResponseWriter.Header().Set("Content-Type", "application/json")
	c.ResponseWriter.Header().Set(`Cache-Control`, `no-cache, max-age=0`)

	output, err := json.Marshal(obj)
	if err != nil {
		http.Error(c.ResponseWriter, err.Error(), http.StatusInternalServerError)
		return err
	}

	// Prevent chunking
	c.ResponseWriter.Header().Set("Content-Length", strconv.Itoa(len(output)))

	return c.WriteResponse(output, statusCode)
}

// WriteResponse writes the status and body
func (c *Context) WriteResponse(output []byte, statusCode int) error {
	c.ResponseWriter.WriteHeader(statusCode)

	// HEAD requests return no body
	if c.GetHTTPMethod() == "HEAD" {
		return nil
	}

	_, err := c.ResponseWriter.Write(output)
	if err != nil {
		// A broken pipe is the client going away, which is expected
		if errors.Is(err, syscall.EPIPE) {
			glog.Warningf(
				"Error writing %s response to %s : %+v",
				c.GetHTTPMethod(),
				c.Request.URL.String(),
				err,
			)
			return err
		}

		glog.Errorf(
			"Error writing %s response to %s : %+v",
			c.GetHTTPMethod(),
			c.Request.URL.String(),
			err,
		)
		return err
	}

	return nil
}

// RespondWithOptions responds to an OPTIONS request
func (c *Context) RespondWithOptions(options []string) error {
	c.ResponseWriter.Header().Set("Allow", strings.Join(options, ","))
	c.ResponseWriter.Header().Set("Content-Length", "0")
	c.ResponseWriter.WriteHeader(http.StatusOK)
	return nil
}

// RespondWithStatus responds with a custom status code and no data
func (c *Context) RespondWithStatus(statusCode int) error {
	return c.Respond(nil, statusCode, nil)
}

// RespondWithErrorMessage responds with a custom status code and message
func (c *Context) RespondWithErrorMessage(message string, statusCode int) error {
	return c.Respond(nil, statusCode, []string{message})
}

// RespondWithErrorDetail responds with the error in the "data" object
func (c *Context) RespondWithErrorDetail(err error, statusCode int) error {
	return c.Respond(err, statusCode, []string{err.Error()})
}

// RespondWithData responds with 200 and the data
func (c *Context) RespondWithData(data interface{}) error {
	return c.Respond(data, http.StatusOK, nil)
}

// RespondWithOK responds with 200 and no data
func (c *Context) RespondWithOK() error {
	return c.RespondWithData(nil)
}
