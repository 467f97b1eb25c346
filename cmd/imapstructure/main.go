// Command imapstructure prints the IMAP BODY or BODYSTRUCTURE fetch
// attribute of a message, and rewrites stored BODYSTRUCTURE values into
// the unextended BODY form.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mjl-/imapstructure"
	"github.com/mjl-/imapstructure/message"
	"github.com/mjl-/imapstructure/mlog"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: imapstructure [-loglevel level] body [file]")
	fmt.Fprintln(os.Stderr, "       imapstructure [-loglevel level] bodystructure [file]")
	fmt.Fprintln(os.Stderr, "       imapstructure [-loglevel level] reduce [bodystructure]")
	os.Exit(2)
}

var log mlog.Log

func xcheckf(err error, format string, args ...any) {
	if err != nil {
		log.Fatalx(fmt.Sprintf(format, args...), err)
	}
}

func main() {
	var loglevel string
	flag.StringVar(&loglevel, "loglevel", "info", "log level: debug, info, warn, error")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(loglevel)); err != nil {
		fmt.Fprintf(os.Stderr, "bad log level %q\n", loglevel)
		usage()
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log = mlog.New("imapstructure", nil)

	cmd, args := args[0], args[1:]
	switch cmd {
	case "body":
		render(false, args)
	case "bodystructure":
		render(true, args)
	case "reduce":
		reduce(args)
	default:
		usage()
	}
}

func render(extended bool, args []string) {
	if len(args) > 1 {
		usage()
	}
	var r io.ReaderAt
	var size int64
	if len(args) == 1 {
		f, err := os.Open(args[0])
		xcheckf(err, "open message file")
		defer func() {
			err := f.Close()
			log.Check(err, "closing message file")
		}()
		fi, err := f.Stat()
		xcheckf(err, "stat message file")
		r, size = f, fi.Size()
	} else {
		buf, err := io.ReadAll(os.Stdin)
		xcheckf(err, "reading message from stdin")
		r, size = bytes.NewReader(buf), int64(len(buf))
	}

	p, err := message.EnsurePart(slog.Default(), r, size)
	if err != nil {
		log.Infox("parsing message, continuing with fallback part", err)
	}
	fmt.Println(imapstructure.Render(p, extended))
}

func reduce(args []string) {
	if len(args) > 1 {
		usage()
	}
	var s string
	if len(args) == 1 {
		s = args[0]
	} else {
		buf, err := io.ReadAll(os.Stdin)
		xcheckf(err, "reading bodystructure from stdin")
		s = strings.TrimRight(string(buf), "\r\n")
	}

	body, err := imapstructure.BodyFromBodystructure(s)
	if err != nil {
		log.Errorx("reducing bodystructure", err, slog.String("bodystructure", s))
		os.Exit(1)
	}
	fmt.Println(body)
}
