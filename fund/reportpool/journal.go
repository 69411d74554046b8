// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package reportpool

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/fund/types"
)

// reportJournal persists accepted report payloads so a validator restart
// inside a consensus window replays them instead of losing coverage. One
// JSON line per report.
type reportJournal struct {
	path   string
	writer io.WriteCloser
}

type journalLine struct {
	Kind    types.ReportKind `json:"kind"`
	Payload []byte           `json:"payload"`
}

func newReportJournal(path string) *reportJournal {
	return &reportJournal{path: path}
}

// load replays every journaled report through add. Undecodable or rejected
// lines are dropped and counted in the load summary; they never abort the
// replay.
func (journal *reportJournal) load(add func(types.ReportKind, []byte) error) error {
	if _, err := os.Stat(journal.path); os.IsNotExist(err) {
		return nil
	}
	input, err := os.Open(journal.path)
	if err != nil {
		return err
	}
	defer input.Close()

	total, dropped := 0, 0
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		total++
		var line journalLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			dropped++
			continue
		}
		if err := add(line.Kind, line.Payload); err != nil {
			dropped++
		}
	}
	logger.Info("Loaded report journal", "reports", total, "dropped", dropped)
	return scanner.Err()
}

// insert appends one accepted report to the live journal.
func (journal *reportJournal) insert(kind types.ReportKind, payload []byte) error {
	if journal.writer == nil {
		sink, err := os.OpenFile(journal.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return err
		}
		journal.writer = sink
	}
	return journal.writeLine(journal.writer, kind, payload)
}

func (journal *reportJournal) writeLine(w io.Writer, kind types.ReportKind, payload []byte) error {
	blob, err := json.Marshal(&journalLine{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}
	if _, err := w.Write(append(blob, '\n')); err != nil {
		return err
	}
	return nil
}

// rotate regenerates the journal from the still-relevant reports, dropping
// everything that aged out of its consensus window.
func (journal *reportJournal) rotate(reportSets ...[]types.Report) error {
	if journal.writer != nil {
		journal.writer.Close()
		journal.writer = nil
	}
	replacement, err := os.OpenFile(journal.path+".new", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	journaled := 0
	for _, set := range reportSets {
		for _, r := range set {
			wire, err := types.MarshalWire(r)
			if err != nil {
				replacement.Close()
				return errors.Wrap(err, "re-journaling report")
			}
			if err := journal.writeLine(replacement, r.Kind(), wire); err != nil {
				replacement.Close()
				return err
			}
			journaled++
		}
	}
	replacement.Close()
	if err := os.Rename(journal.path+".new", journal.path); err != nil {
		return err
	}
	logger.Info("Regenerated report journal", "reports", journaled)
	return nil
}

func (journal *reportJournal) close() error {
	if journal.writer != nil {
		journal.writer.Close()
		journal.writer = nil
	}
	return nil
}
