package prune

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Unknwon/com"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/rai-project/go-prune/config"
)

// Event records one applied group.
type Event struct {
	Trigger      string        `json:"trigger"`
	Dim          string        `json:"dim"`
	Removed      int           `json:"removed"`
	Entries      []string      `json:"entries"`
	ParamsBefore int           `json:"params_before"`
	ParamsAfter  int           `json:"params_after"`
	Time         time.Time     `json:"time"`
	Duration     time.Duration `json:"duration"`
}

// Report collects pruning events and writes them to a JSON file.
type Report struct {
	Events    []Event   `json:"events"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	started   bool
	stopped   bool
	dumped    bool
	filename  string
}

// NewReport creates a report backed by a fresh file in dir, or in the
// configured temporary directory when dir is empty.
func NewReport(dir string) (*Report, error) {
	if dir == "" {
		dir = filepath.Join(config.App.TempDir, "prune", "report")
	}
	if !com.IsDir(dir) {
		if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
			return nil, errors.Wrapf(err, "cannot create report directory %v", dir)
		}
	}
	f, err := ioutil.TempFile(dir, "report-*.json")
	if err != nil {
		return nil, errors.Errorf("cannot create temporary file in %v", dir)
	}
	f.Close()

	return &Report{
		filename: f.Name(),
	}, nil
}

func (r *Report) Filename() string {
	return r.filename
}

func (r *Report) Start() error {
	if r.started {
		return errors.New("pruning report was already started")
	}
	r.StartTime = time.Now()
	r.started = true
	return nil
}

func (r *Report) Stop() error {
	if !r.started {
		return errors.New("pruning report was not started")
	}
	if r.stopped {
		return nil
	}
	r.EndTime = time.Now()
	r.stopped = true
	return nil
}

// Record appends an event for group. Events are only kept while the report is
// running.
func (r *Report) Record(group *Group, paramsBefore, paramsAfter int, took time.Duration) {
	if !r.started || r.stopped {
		return
	}
	trigger := group.Trigger()
	ev := Event{
		Trigger:      trigger.Node.Name,
		Dim:          trigger.Dim.String(),
		Removed:      trigger.Indices.Len(),
		ParamsBefore: paramsBefore,
		ParamsAfter:  paramsAfter,
		Time:         time.Now(),
		Duration:     took,
	}
	for _, e := range group.Entries() {
		ev.Entries = append(ev.Entries, e.String())
	}
	r.Events = append(r.Events, ev)
}

// Dump writes the report to its file and returns the file name.
func (r *Report) Dump() (string, error) {
	if !r.started {
		return "", errors.New("pruning report was not started")
	}
	if !r.stopped {
		return "", errors.New("pruning report was not stopped")
	}
	if r.dumped {
		return r.filename, nil
	}

	bts, err := json.MarshalIndent(r, "", "\t")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal pruning report")
	}
	if err := ioutil.WriteFile(r.filename, bts, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write %v", r.filename)
	}
	r.dumped = true
	return r.filename, nil
}

// Read loads a dumped report back from its file.
func (r *Report) Read() error {
	if !com.IsFile(r.filename) {
		return errors.Errorf("unable to read report because %v does not exist", r.filename)
	}
	bts, err := ioutil.ReadFile(r.filename)
	if err != nil {
		return err
	}
	var loaded Report
	if err := json.Unmarshal(bts, &loaded); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %v", r.filename)
	}
	r.Events = loaded.Events
	r.StartTime = loaded.StartTime
	r.EndTime = loaded.EndTime
	return nil
}

func (r *Report) String() (string, error) {
	bts, err := json.MarshalIndent(r, "", "\t")
	if err != nil {
		return "", err
	}
	return string(bts), nil
}

// Summary renders the events as human readable lines.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, ev := range r.Events {
		saved := ev.ParamsBefore - ev.ParamsAfter
		fmt.Fprintf(&b, "%s %s -%d: %d entries, %s -> %s parameters (-%s), %s\n",
			ev.Trigger, ev.Dim, ev.Removed, len(ev.Entries),
			humanize.Comma(int64(ev.ParamsBefore)), humanize.Comma(int64(ev.ParamsAfter)),
			humanize.Comma(int64(saved)), humanize.Time(ev.Time))
	}
	return b.String()
}

func (r *Report) Delete() error {
	if !com.IsFile(r.filename) {
		return nil
	}
	return os.Remove(r.filename)
}
