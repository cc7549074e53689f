package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/gnslab/gns"
	"github.com/linkdata/rate"
	"github.com/miekg/dns"
)

var flagCpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
var flagMemprofile = flag.String("memprofile", "", "write memory profile to `file`")
var flagTimeout = flag.Int("timeout", 60, "individual query timeout in seconds")
var flagRatelimit = flag.Int("ratelimit", 0, "rate limit distributed gets, 0 means no limit")
var flagZone = flag.String("zone", "", "starting zone key (base58)")
var flagType = flag.String("type", "A", "record type to query for")
var flagCachefile = flag.String("cachefile", "", "load and save the block cache from this file")
var flagLocalOnly = flag.Bool("localonly", false, "never go to the network, answer from cache only")
var flagCount = flag.Int("count", 1, "repeat count")
var flagSleep = flag.Int("sleep", 0, "sleep ms between repeats")
var flagDebug = flag.Bool("debug", false, "print debug output")

// gnsTypes covers the record types miekg/dns has no names for.
var gnsTypes = map[string]uint32{
	"PKEY":    gns.TypePKEY,
	"NICK":    gns.TypeNICK,
	"LEHO":    gns.TypeLEHO,
	"VPN":     gns.TypeVPN,
	"GNS2DNS": gns.TypeGNS2DNS,
	"BOX":     gns.TypeBOX,
	"REVERSE": gns.TypeREVERSE,
	"ANY":     gns.TypeAny,
}

func parseType(s string) (qtype uint32, err error) {
	s = strings.ToUpper(s)
	if x, ok := gnsTypes[s]; ok {
		return x, nil
	}
	if x, ok := dns.StringToType[s]; ok {
		return uint32(x), nil
	}
	return 0, fmt.Errorf("unknown record type %q", s)
}

func loadCache(cache *gns.Cache, fn string) {
	f, err := os.Open(fn) // #nosec G304
	if err == nil {
		defer f.Close()
		if _, err = cache.ReadFrom(f); err != nil {
			log.Printf("failed to read %q: %v", fn, err)
		}
	}
}

func saveCache(cache *gns.Cache, fn string) {
	f, err := os.Create(fn) // #nosec G304
	if err == nil {
		defer f.Close()
		if _, err = cache.WriteTo(f); err != nil {
			log.Printf("failed to write %q: %v", fn, err)
		}
	}
}

func main() {
	flag.Parse()
	if *flagCpuprofile != "" {
		f, err := os.Create(*flagCpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		_ = pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	qtype, err := parseType(*flagType)
	if err != nil {
		log.Fatal(err)
	}
	zone, err := gns.ZoneKeyFromString(*flagZone)
	if err != nil {
		log.Fatalf("invalid zone key: %v", err)
	}
	qnames := flag.Args()
	if len(qnames) == 0 {
		fmt.Println("missing one or more names to query")
		return
	}

	cache := gns.NewCache()
	if *flagCachefile != "" {
		loadCache(cache, *flagCachefile)
	}

	maxrate := int32(*flagRatelimit) // #nosec G115
	var rateLimiter <-chan struct{}
	if maxrate > 0 {
		rateLimiter = rate.NewTicker(nil, &maxrate).C
	}

	opt := gns.LookupDefault
	if *flagLocalOnly {
		opt = gns.LookupNoDistributed
	}

	resolver := gns.NewWithOptions(nil, cache, nil, nil, nil, 0, rateLimiter)

	var dbgout io.Writer
	if *flagDebug {
		dbgout = os.Stderr
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*time.Duration(*flagTimeout))
	defer cancel()

	for i := 0; i < *flagCount; i++ {
		if i > 0 && *flagSleep > 0 {
			time.Sleep(time.Millisecond * time.Duration(*flagSleep))
		}
		for _, qname := range qnames {
			recs, err := resolver.ResolveWithOptions(ctx, dbgout, zone, qtype, qname, opt)
			fmt.Printf(";;; %s %s.%s\n", gns.RecordTypeToString(qtype), qname, zone)
			if err != nil {
				fmt.Printf(";; ERROR: %v\n", err)
				continue
			}
			for _, rec := range recs {
				fmt.Println(rec.String())
			}
		}
	}

	fmt.Printf(";;; cache size %d, hit ratio %.2f%%\n", cache.Entries(), cache.HitRatio())

	if *flagCachefile != "" {
		saveCache(cache, *flagCachefile)
	}

	if *flagMemprofile != "" {
		f, err := os.Create(*flagMemprofile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
