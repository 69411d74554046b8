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

package node

import "github.com/pkg/errors"

var (
	ErrServiceUnknown = errors.New("unknown service")
	ErrNodeStopped    = errors.New("node not started")
	ErrNodeRunning    = errors.New("node already running")
)

// Service is an individual long-lived component a daemon runs: the report
// pool, the vault actor, the exporter. Life-cycle management is delegated
// to the daemon; services initialize on construction but spin goroutines
// only in Start.
type Service interface {
	// Start is called after all services have been constructed.
	Start() error
	// Stop terminates all goroutines belonging to the service, blocking
	// until they are all terminated.
	Stop() error
}

// Stack runs an ordered set of services, stopping in reverse order on the
// way down.
type Stack struct {
	services []Service
	running  bool
}

func (s *Stack) Register(svc Service) {
	s.services = append(s.services, svc)
}

func (s *Stack) Start() error {
	if s.running {
		return ErrNodeRunning
	}
	for i, svc := range s.services {
		if err := svc.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				s.services[j].Stop()
			}
			return err
		}
	}
	s.running = true
	return nil
}

func (s *Stack) Stop() error {
	if !s.running {
		return ErrNodeStopped
	}
	for i := len(s.services) - 1; i >= 0; i-- {
		if err := s.services[i].Stop(); err != nil {
			return err
		}
	}
	s.running = false
	return nil
}
