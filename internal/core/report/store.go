package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telebench/telebench/internal/core/protocol"
)

// JSONStore persists raw samples for downstream tooling. Each run gets one
// file under dir, named by the hello nonce, holding one JSON object per
// line: a run header followed by one record per completed benchmark. No
// statistics are computed here.
type JSONStore struct {
	dir  string
	path string
	f    *os.File
	enc  *json.Encoder
}

type storeHeader struct {
	Record    string              `json:"record"`
	Nonce     string              `json:"nonce"`
	Clock     protocol.ClockInfo  `json:"clock"`
	Runner    protocol.RunnerInfo `json:"runner"`
	StartedAt time.Time           `json:"started_at"`
}

type storeBenchmark struct {
	Record string `json:"record"`
	Report
}

var _ Sink = (*JSONStore)(nil)

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

// Path returns the run file location, empty before RunStarted.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) RunStarted(hello protocol.Hello) error {
	if s.f != nil {
		return fmt.Errorf("store: run already started at %s", s.path)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", s.dir, err)
	}
	name := hello.Nonce
	if name == "" {
		name = fmt.Sprintf("run-%d", time.Now().Unix())
	}
	s.path = filepath.Join(s.dir, name+".json")
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", s.path, err)
	}
	s.f = f
	s.enc = json.NewEncoder(f)
	return s.enc.Encode(storeHeader{
		Record:    "run",
		Nonce:     hello.Nonce,
		Clock:     hello.Clock,
		Runner:    hello.Runner,
		StartedAt: time.Now().UTC(),
	})
}

func (s *JSONStore) GroupStarted(string) error {
	return nil
}

func (s *JSONStore) BenchmarkStarted(protocol.Identifier) error {
	return nil
}

func (s *JSONStore) Progress(protocol.Identifier, Phase) error {
	return nil
}

func (s *JSONStore) MeasurementComplete(rep Report) error {
	if s.enc == nil {
		return fmt.Errorf("store: measurement before run start")
	}
	return s.enc.Encode(storeBenchmark{Record: "benchmark", Report: rep})
}

func (s *JSONStore) BenchmarkSkipped(protocol.Identifier, string) error {
	return nil
}

func (s *JSONStore) GroupFinished(string) error {
	return nil
}

func (s *JSONStore) RunFinished() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.enc = nil
	if err != nil {
		return fmt.Errorf("store: close %s: %w", s.path, err)
	}
	return nil
}
