package main

import (
	"fmt"
	"os"

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

	err = fs.Format()
	log.PanicIf(err)

	fmt.Printf("Formatted (%d) sectors; capacity is (%d) objects.\n", rootArguments.SectorCount, fs.Capacity())
}
