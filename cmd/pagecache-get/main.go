// Command pagecache-get fetches a URL through the cache twice and prints the
// content length and the access count each time. The second fetch should be
// served from the cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/microcosm-cc/pagecache/cache"
	"github.com/microcosm-cc/pagecache/fetcher"
	"github.com/microcosm-cc/pagecache/resolver"
)

var (
	memcached = flag.String("memcached", "", "memcached host:port, empty to cache in memory")
	ttl       = flag.Duration("ttl", cache.DefaultTTL, "how long to cache the page")
	timeout   = flag.Duration("timeout", 30*time.Second, "fetch timeout")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] url\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	defer glog.Flush()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	var (
		store  cache.Store
		locker cache.Locker
	)
	if *memcached != "" {
		s := cache.NewMemcacheStore(time.Second, *memcached)
		store, locker = s, s
	} else {
		s := cache.NewMemoryStore(nil)
		store, locker = s, s
	}

	coord := cache.NewCoordinator(
		store,
		fetcher.New(*timeout, "", 0),
		cache.Options{DefaultTTL: *ttl, Locker: locker},
	)

	key, err := resolver.Canonicalize(flag.Arg(0))
	if err != nil {
		glog.Exit(err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := coord.Lookup(ctx, key, 0)
		if err != nil {
			glog.Exit(err)
		}
		fmt.Printf("Length of content: %d (hit: %t, count: %d)\n", len(res.Content), res.Hit, res.Count)
	}
}
