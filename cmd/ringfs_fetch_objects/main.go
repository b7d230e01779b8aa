package main

import (
	"fmt"
	"os"

	"encoding/hex"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-ringfs"
)

type rootParameters struct {
	ImageFilepath string `short:"f" long:"image-filepath" description:"File-path of flash image" required:"true"`
	SectorSize    int    `long:"sector-size" description:"Sector size, in bytes" default:"65536"`
	SectorOffset  int    `long:"sector-offset" description:"Partition offset, in sectors" default:"0"`
	SectorCount   int    `long:"sector-count" description:"Partition size, in sectors" default:"4"`
	ObjectSize    int    `long:"object-size" description:"Object size, in bytes" default:"16"`
	Version       uint32 `long:"version" description:"Object schema version" default:"1"`
	MaxCount      int    `short:"n" long:"max-count" description:"Stop after this many objects (0 for all)" default:"0"`
	Raw           bool   `short:"r" long:"raw" description:"Write raw payload bytes to STDOUT instead of hex lines"`
	Discard       bool   `long:"discard" description:"Discard the fetched objects afterward"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	ff, err := ringfs.NewFileFlash(rootArguments.ImageFilepath, rootArguments.SectorSize, rootArguments.SectorOffset, rootArguments.SectorCount)
	log.PanicIf(err)

	defer ff.Close()

	fs, err := ringfs.NewRingFS(ff, rootArguments.Version, rootArguments.ObjectSize)
	log.PanicIf(err)

	err = fs.Scan()
	log.PanicIf(err)

	object := make([]byte, rootArguments.ObjectSize)

	fetched := 0
	for rootArguments.MaxCount == 0 || fetched < rootArguments.MaxCount {
		err := fs.Fetch(object)
		if err == ringfs.ErrEmpty {
			break
		}

		log.PanicIf(err)

		if rootArguments.Raw == true {
			_, err = os.Stdout.Write(object)
			log.PanicIf(err)
		} else {
			fmt.Printf("%s\n", hex.EncodeToString(object))
		}

		fetched++
	}

	if rootArguments.Discard == true {
		err = fs.Discard()
		log.PanicIf(err)
	}

	if rootArguments.Raw != true {
		fmt.Printf("(%d) objects fetched.\n", fetched)
	}
}
