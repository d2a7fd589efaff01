// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// csvHeader labels exported columns; import tolerates its presence.
var csvHeader = []string{"time", "sop", "raw", "decoded"}

// ReadCSV parses stored capture records. Two-column rows are timestamp
// and hex payload; wider rows follow the export layout, where the hex
// payload sits in the raw column and trailing columns carry rendered
// text. Each payload is normalized to the fixed frame size (truncated
// beyond it, zero-padded if short) before decoding, per the storage
// contract. Rows that cannot be parsed are counted in skipped and do
// not abort the read.
//
// Timestamps are RFC 3339 or fractional Unix seconds.
func ReadCSV(r io.Reader) (frames []StoredFrame, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for {
		record, rerr := cr.Read()
		if rerr == io.EOF {
			return frames, skipped, nil
		}
		if rerr != nil {
			return frames, skipped, fmt.Errorf("read capture csv: %w", rerr)
		}
		if len(record) < 2 {
			skipped++
			continue
		}
		if record[0] == csvHeader[0] {
			continue
		}

		rawCol := record[len(record)-1]
		if len(record) >= len(csvHeader) {
			rawCol = record[2]
		}
		ts, terr := parseTimestamp(record[0])
		raw, herr := parseHex(rawCol)
		if terr != nil || herr != nil {
			skipped++
			continue
		}
		frames = append(frames, StoredFrame{Time: ts, Frame: pdwire.Normalize(raw)})
	}
}

// WriteCSV exports one record per logged control message: timestamp,
// SOP*, the raw bits in upper hex, and the rendered decode tree.
func WriteCSV(w io.Writer, msgs []*pdwire.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write capture csv: %w", err)
	}
	for _, msg := range msgs {
		record := []string{
			msg.Timestamp().Format(time.RFC3339Nano),
			msg.SOP(),
			msg.RawHex(),
			strings.TrimRight(pdwire.FormatMessage(msg), "\n"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write capture csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return time.Unix(0, int64(secs*float64(time.Second))), nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}

// Snapshot format: a CBOR document keyed by small integers, carrying
// the control-message log losslessly. Loading yields stored frames that
// replay into the identical session.

const snapshotVersion = 1

type snapshotMessage struct {
	Time  time.Time `cbor:"1,keyasint"`
	Ticks uint32    `cbor:"2,keyasint"`
	SOP   byte      `cbor:"3,keyasint"`
	Raw   []byte    `cbor:"4,keyasint"`
}

type snapshot struct {
	Version  int               `cbor:"1,keyasint"`
	SavedAt  time.Time         `cbor:"2,keyasint"`
	Messages []snapshotMessage `cbor:"3,keyasint"`
}

var snapshotEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// WriteSnapshot serializes the control-message log as a CBOR snapshot.
func WriteSnapshot(w io.Writer, msgs []*pdwire.Message) error {
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now(),
	}
	for _, msg := range msgs {
		snap.Messages = append(snap.Messages, snapshotMessage{
			Time:  msg.Timestamp(),
			Ticks: msg.Ticks(),
			SOP:   msg.SOPCode(),
			Raw:   msg.Raw(),
		})
	}
	if err := snapshotEnc.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a CBOR snapshot back into stored frames ready for
// Import.
func ReadSnapshot(r io.Reader) ([]StoredFrame, error) {
	var snap snapshot
	if err := cbor.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("read snapshot: unsupported version %d", snap.Version)
	}
	frames := make([]StoredFrame, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		frames = append(frames, StoredFrame{
			Time:  m.Time,
			Frame: pdwire.EventFrame(m.SOP, m.Raw, m.Ticks),
		})
	}
	return frames, nil
}
