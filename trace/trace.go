// Package trace parses the simulator's input trace format: one memory
// access per line, "<hex-addr> <R|W> <hostid>".
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cxlnet/node"
	"github.com/sarchlab/cxlnet/policy"
)

// ErrMalformedTrace is returned, wrapped with the offending line number, for
// any record that isn't exactly "<hex-addr> <R|W> <hostid>".
var ErrMalformedTrace = errors.New("trace: malformed record")

// Record is one parsed trace line.
type Record struct {
	Addr uint64
	Op   policy.Op
	Host node.HostID
}

// Scanner reads Records one at a time from a trace file, in order.
type Scanner struct {
	file *os.File
	sc   *bufio.Scanner
	line int
}

// Open opens path for streaming trace reads.
func Open(path string) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	return &Scanner{file: f, sc: bufio.NewScanner(f)}, nil
}

// Close closes the underlying file.
func (s *Scanner) Close() error { return s.file.Close() }

// Next returns the next record, or io.EOF once the file is exhausted. A
// malformed line returns ErrMalformedTrace wrapped with its line number;
// the scanner does not attempt to recover and resync past it.
func (s *Scanner) Next() (Record, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return Record{}, fmt.Errorf("trace: read line %d: %w", s.line+1, err)
		}
		return Record{}, io.EOF
	}
	s.line++
	return parseLine(s.sc.Text(), s.line)
}

func parseLine(line string, lineNum int) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w at line %d: expected 3 fields, got %d", ErrMalformedTrace, lineNum, len(fields))
	}

	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w at line %d: bad address %q: %v", ErrMalformedTrace, lineNum, fields[0], err)
	}

	var op policy.Op
	switch fields[1] {
	case "R":
		op = policy.Read
	case "W":
		op = policy.Write
	default:
		return Record{}, fmt.Errorf("%w at line %d: bad op %q, want R or W", ErrMalformedTrace, lineNum, fields[1])
	}

	hostID, err := strconv.Atoi(fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w at line %d: bad host id %q: %v", ErrMalformedTrace, lineNum, fields[2], err)
	}

	return Record{Addr: addr, Op: op, Host: node.HostID(hostID)}, nil
}

// Hosts scans the full trace at path and returns the set of distinct host
// ids it references, without running the simulation. Used by the CLI to
// sanity-check a config's Num hosts against the trace before starting.
func Hosts(path string) (map[node.HostID]struct{}, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	hosts := make(map[node.HostID]struct{})
	for {
		rec, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		hosts[rec.Host] = struct{}{}
	}
	return hosts, nil
}
