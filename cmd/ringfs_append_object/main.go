package main

import (
	"fmt"
	"io/ioutil"
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
	HexData       string `short:"d" long:"data" description:"Object payload as hex (must be exactly object-size bytes)"`
	InputFilepath string `short:"i" long:"input-filepath" description:"File to read the payload from ('-' for STDIN)"`
}

var (
	rootArguments = new(rootParameters)
)

func readObject() (object []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if rootArguments.HexData != "" {
		object, err = hex.DecodeString(rootArguments.HexData)
		log.PanicIf(err)

		return object, nil
	}

	if rootArguments.InputFilepath == "" {
		log.Panicf("either --data or --input-filepath is required")
	}

	if rootArguments.InputFilepath == "-" {
		object, err = ioutil.ReadAll(os.Stdin)
		log.PanicIf(err)
	} else {
		object, err = ioutil.ReadFile(rootArguments.InputFilepath)
		log.PanicIf(err)
	}

	return object, nil
}

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

	object, err := readObject()
	log.PanicIf(err)

	if len(object) != rootArguments.ObjectSize {
		fmt.Printf("Payload is (%d) bytes but the partition stores (%d)-byte objects.\n", len(object), rootArguments.ObjectSize)
		os.Exit(2)
	}

	ff, err := ringfs.NewFileFlash(rootArguments.ImageFilepath, rootArguments.SectorSize, rootArguments.SectorOffset, rootArguments.SectorCount)
	log.PanicIf(err)

	defer ff.Close()

	fs, err := ringfs.NewRingFS(ff, rootArguments.Version, rootArguments.ObjectSize)
	log.PanicIf(err)

	err = fs.Scan()
	log.PanicIf(err)

	err = fs.Append(object)
	log.PanicIf(err)

	countExact, err := fs.CountExact()
	log.PanicIf(err)

	fmt.Printf("(%d) objects stored.\n", countExact)
}
