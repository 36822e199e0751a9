package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/canlog/pkg/datalog"
)

var (
	outputJSON bool
	summary    bool
)

func init() {
	flag.Set("logtostderr", "true")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print records as JSON lines.")
	flag.BoolVar(&summary, "summary", summary, "Only print record counts.")
}

type jsonRecord struct {
	Type    string `json:"type"`
	TS      uint64 `json:"ts"`
	ID      uint32 `json:"id,omitempty"`
	Len     uint8  `json:"len,omitempty"`
	Data    string `json:"data,omitempty"`
	Payload string `json:"payload,omitempty"`
}

func dump(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	rd, err := datalog.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	counts := make(map[datalog.RecordType]int)
	enc := json.NewEncoder(w)
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s at offset %d: %w", name, rd.Offset(), err)
		}
		counts[rec.Type()]++
		if summary {
			continue
		}
		switch r := rec.(type) {
		case *datalog.FrameRecord:
			if outputJSON {
				err = enc.Encode(&jsonRecord{Type: r.Tag.String(), TS: r.TS, ID: r.ID, Len: r.Len, Data: hex.EncodeToString(r.Payload())})
			} else {
				_, err = fmt.Fprintf(w, "%12d %-7s %08X [%d] % X\n", r.TS, r.Tag, r.ID, r.Len, r.Payload())
			}
		case *datalog.SensorRecord:
			if outputJSON {
				err = enc.Encode(&jsonRecord{Type: datalog.RecordSensor.String(), TS: r.TS, Payload: hex.EncodeToString(r.Payload)})
			} else {
				_, err = fmt.Fprintf(w, "%12d %-7s % X\n", r.TS, datalog.RecordSensor, r.Payload)
			}
		}
		if err != nil {
			return err
		}
	}
	if summary || !outputJSON {
		fmt.Fprintf(w, "%s: version %d, %d sensor, %d vehicle, %d sniff records\n", name, rd.Header.Version,
			counts[datalog.RecordSensor], counts[datalog.RecordVehicle], counts[datalog.RecordSniff])
	}
	return nil
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: canlog-dump [-json] [-summary] LOG_0000.BIN ...")
		os.Exit(2)
	}
	var failed bool
	for _, name := range flag.Args() {
		if err := dump(os.Stdout, name); err != nil {
			glog.Error(err)
			failed = true
		}
	}
	glog.Flush()
	if failed {
		os.Exit(1)
	}
}
