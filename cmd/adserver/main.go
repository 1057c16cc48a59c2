// adserver is the exposure REST API server.
//
// Configuration comes from a TOML file given with -config, with
// individual flags overriding the file. The smallest useful invocation
// is
//
//	adserver -storage /path/to/exposures
package main

import (
	"flag"
	"log"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	raven "github.com/getsentry/raven-go"

	"github.com/stinyanont/DRAGONS/exposures"
	"github.com/stinyanont/DRAGONS/server"
	"github.com/stinyanont/DRAGONS/store"
)

type config struct {
	Port        string
	PProfPort   string
	Storage     string // directory for the exposure store
	StorePrefix string // key prefix, for servers sharing one root
	Mmap        bool   // memory-map payload reads
	S3Bucket    string // use S3 instead of the file system
	S3Prefix    string
	AWSRegion   string
	CacheDir    string
	Mysql       string
	Tokenfile   string
	SentryDSN   string
	NoVerify    bool
}

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file")
		port       = flag.String("port", "", "port to listen on")
		storage    = flag.String("storage", "", "location of the storage directory")
		tokenfile  = flag.String("tokenfile", "", "path to API token file")
		mysql      = flag.String("mysql", "", "MySQL dial string")
	)
	flag.Parse()

	var c config
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &c); err != nil {
			log.Fatalln("config:", err)
		}
	}
	// flags override the file
	if *port != "" {
		c.Port = *port
	}
	if *storage != "" {
		c.Storage = *storage
	}
	if *tokenfile != "" {
		c.Tokenfile = *tokenfile
	}
	if *mysql != "" {
		c.Mysql = *mysql
	}

	if c.SentryDSN != "" {
		raven.SetDSN(c.SentryDSN)
	}

	var s store.Store
	switch {
	case c.S3Bucket != "":
		log.Printf("Using S3 bucket %s/%s", c.S3Bucket, c.S3Prefix)
		awsSession, err := session.NewSession(&aws.Config{Region: aws.String(c.AWSRegion)})
		if err != nil {
			log.Fatalln("aws:", err)
		}
		s = store.NewS3(c.S3Bucket, c.S3Prefix, awsSession)
	case c.Storage != "":
		log.Printf("Using storage dir %s", c.Storage)
		if c.Mmap {
			s = store.NewFileSystemMmap(c.Storage)
		} else {
			s = store.NewFileSystem(c.Storage)
		}
	default:
		log.Println("No storage given, keeping exposures in memory")
		s = store.NewMemory()
	}
	if c.StorePrefix != "" {
		log.Printf("Using key prefix %s", c.StorePrefix)
		s = store.NewWithPrefix(s, c.StorePrefix)
	}

	var validator server.TokenDecoder
	if c.Tokenfile != "" {
		var err error
		validator, err = server.NewListDecoderFile(c.Tokenfile)
		if err != nil {
			log.Fatalln("tokenfile:", err)
		}
	}

	srv := &server.RESTServer{
		PortNumber:    c.Port,
		PProfPort:     c.PProfPort,
		Exposures:     exposures.New(s),
		CacheDir:      c.CacheDir,
		MySQL:         c.Mysql,
		Validator:     validator,
		DisableVerify: c.NoVerify,
	}
	err := srv.Run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
