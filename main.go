package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/microcosm-cc/pagecache/audit"
	"github.com/microcosm-cc/pagecache/blob"
	"github.com/microcosm-cc/pagecache/cache"
	conf "github.com/microcosm-cc/pagecache/config"
	"github.com/microcosm-cc/pagecache/controller"
	"github.com/microcosm-cc/pagecache/fetcher"
	h "github.com/microcosm-cc/pagecache/helpers"
	"github.com/microcosm-cc/pagecache/metrics"
	"github.com/microcosm-cc/pagecache/resolver"
	"github.com/microcosm-cc/pagecache/server"
)

var configPath = flag.String("config", conf.ConfigFilePath, "path to the config file")

func main() {
	// Also used to init glog
	flag.Parse()

	// 100 megabytes max before rolling the log files
	glog.MaxSize = 1024 * 1024 * 100
	defer glog.Flush()

	err := conf.ReadConfigFile(*configPath)
	if err != nil {
		glog.Fatal(err)
	}

	store, locker := initStore()

	if conf.ConfigStrings[conf.S3Endpoint] != "" {
		if glog.V(2) {
			glog.Infof(
				"Initialising overflow bucket %s on %s",
				conf.ConfigStrings[conf.S3BucketName],
				conf.ConfigStrings[conf.S3Endpoint],
			)
		}
		overflow, err := blob.NewOverflowStore(store, blob.Config{
			Endpoint:        conf.ConfigStrings[conf.S3Endpoint],
			AccessKeyID:     conf.ConfigStrings[conf.S3AccessKeyID],
			SecretAccessKey: conf.ConfigStrings[conf.S3SecretAccessKey],
			Bucket:          conf.ConfigStrings[conf.S3BucketName],
			Secure:          conf.ConfigBools[conf.S3Secure],
			Threshold:       int(conf.ConfigInt64s[conf.OverflowThresholdBytes]),
		})
		if err != nil {
			glog.Fatal(err)
		}
		err = overflow.CheckBucket(context.Background())
		if err != nil {
			glog.Fatal(err)
		}
		store = overflow
	}

	m := metrics.NewMetrics("pagecache")

	coord := cache.NewCoordinator(
		store,
		fetcher.New(
			time.Duration(conf.ConfigInt64s[conf.FetchTimeoutSeconds])*time.Second,
			conf.ConfigStrings[conf.UserAgent],
			conf.ConfigInt64s[conf.FetchMaxBytes],
		),
		cache.Options{
			DefaultTTL:   time.Duration(conf.ConfigInt64s[conf.DefaultTTLSeconds]) * time.Second,
			Locker:       locker,
			LockTTL:      time.Duration(conf.ConfigInt64s[conf.LockTTLSeconds]) * time.Second,
			PollInterval: time.Duration(conf.ConfigInt64s[conf.PollIntervalMS]) * time.Millisecond,
			Metrics:      m,
		},
	)

	res := resolver.New(
		conf.ConfigBools[conf.ResolveRedirects],
		store,
		time.Duration(conf.ConfigInt64s[conf.FetchTimeoutSeconds])*time.Second,
	)

	jobs := server.Jobs{
		server.EveryMinute: m.LogStats,
	}

	var (
		db       *sql.DB
		recorder *audit.Recorder
	)
	if conf.ConfigStrings[conf.DatabaseHost] != "" {
		if glog.V(2) {
			glog.Infof(
				"Initialising DB connection on %s:%d for database %s",
				conf.ConfigStrings[conf.DatabaseHost],
				conf.ConfigInt64s[conf.DatabasePort],
				conf.ConfigStrings[conf.DatabaseName],
			)
		}
		db, err = h.OpenDB(h.DBConfig{
			Host:     conf.ConfigStrings[conf.DatabaseHost],
			Port:     conf.ConfigInt64s[conf.DatabasePort],
			Database: conf.ConfigStrings[conf.DatabaseName],
			Username: conf.ConfigStrings[conf.DatabaseUsername],
			Password: conf.ConfigStrings[conf.DatabasePassword],
		})
		if err != nil {
			glog.Fatal(err)
		}
		defer db.Close()

		err = audit.CreateTable(db)
		if err != nil {
			glog.Fatal(err)
		}

		recorder = audit.NewRecorder(db, 0)
		jobs[server.EveryTenSeconds] = recorder.FlushJob
	}

	srv, err := server.New(
		conf.ConfigInt64s[conf.ListenPort],
		server.Handlers{
			Pages:   &controller.PagesController{Cache: coord, Resolver: res, Recorder: recorder},
			Counts:  &controller.CountsController{Cache: coord, Resolver: res},
			Metrics: m.Handler(),
		},
		jobs,
	)
	if err != nil {
		glog.Fatal(err)
	}

	// Catch closing signal, drain requests and flush what is buffered
	sigc := make(chan os.Signal, 1)
	signal.Notify(
		sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	go func() {
		sig := <-sigc
		glog.Warningf("Caught %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			glog.Errorf("srv.Shutdown() %+v", err)
		}
	}()

	err = srv.Start()
	if err != nil {
		glog.Fatal(err)
	}

	if recorder != nil {
		recorder.FlushJob()
	}
}

// initStore connects to memcached if configured, otherwise falls back to a
// store held in this process
func initStore() (cache.Store, cache.Locker) {
	host := conf.ConfigStrings[conf.MemcachedHost]
	if host == "" {
		glog.Warning("No memcached_host configured, caching in process memory only")
		s := cache.NewMemoryStore(nil)
		return s, s
	}

	addr := fmt.Sprintf("%s:%d", host, conf.ConfigInt64s[conf.MemcachedPort])
	if glog.V(2) {
		glog.Infof("Initialising cache connection to %s", addr)
	}

	s := cache.NewMemcacheStore(
		time.Duration(conf.ConfigInt64s[conf.MemcachedTimeoutMS])*time.Millisecond,
		addr,
	)
	err := s.Ping()
	if err != nil {
		glog.Fatalf("memcached at %s is unreachable: %+v", addr, err)
	}

	return s, s
}
