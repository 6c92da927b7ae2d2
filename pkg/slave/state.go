package slave

import (
	"context"
	"errors"
	"fmt"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

func (s *Slave) alStatus(ctx context.Context) (esc.AlControl, error) {
	raw, err := s.station.ReadIgnoreWkc(ctx, esc.RegisterAlStatus, 2)
	if err != nil {
		return esc.AlControl{}, err
	}
	return wire.Decode[esc.AlControl](raw)
}

func (s *Slave) alStatusCode(ctx context.Context) (esc.AlStatusCode, error) {
	raw, err := s.station.Read(ctx, esc.RegisterAlStatusCode, 2)
	if err != nil {
		return esc.AlNoError, err
	}
	return wire.Decode[esc.AlStatusCode](raw)
}

// Status returns the current AL state of the slave and its AL status code.
func (s *Slave) Status(ctx context.Context) (esc.SlaveState, esc.AlStatusCode, error) {
	raw, err := s.station.Read(ctx, esc.RegisterAlStatus, 2)
	if err != nil {
		return esc.StateNone, esc.AlNoError, err
	}
	status, err := wire.Decode[esc.AlControl](raw)
	if err != nil {
		return esc.StateNone, esc.AlNoError, err
	}
	code, err := s.alStatusCode(ctx)
	if err != nil {
		return esc.StateNone, esc.AlNoError, err
	}
	return status.State, code, nil
}

// RequestState asks the slave to go to target and acknowledges any pending
// error. It does not wait for the transition, see [Slave.WaitForState].
func (s *Slave) RequestState(ctx context.Context, target esc.SlaveState) error {
	s.logger.WithField("state", target).Debug("requesting state")
	control, err := wire.Marshal(esc.NewAlControl(target))
	if err != nil {
		return err
	}
	echo, err := s.station.Write(ctx, esc.RegisterAlControl, control)
	if err != nil {
		return err
	}
	response, err := wire.Decode[esc.AlControl](echo)
	if err != nil {
		return err
	}
	if !response.Error {
		return nil
	}
	code, err := s.alStatusCode(ctx)
	if err != nil {
		return err
	}
	if code == esc.AlNoError {
		return nil
	}
	status, err := s.alStatus(ctx)
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"requested": target,
		"current":   status.State,
		"code":      fmt.Sprintf("x%04x", uint16(code)),
	}).Errorf("state transition refused : %v", code)
	return &StateTransitionError{Slave: s.Address(), Requested: target, Current: status.State, Code: code}
}

// WaitForState polls the AL status until the slave reports target. It gives
// up after the state transition timeout, or as soon as the slave flags an
// error while in another state.
func (s *Slave) WaitForState(ctx context.Context, target esc.SlaveState) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.StateTransition)
	defer cancel()
	last := esc.StateNone
	for {
		status, err := s.alStatus(ctx)
		if err != nil {
			return s.stateTimeout(ctx, err, target, last)
		}
		last = status.State
		if status.State == target {
			s.logger.WithField("state", target).Debug("state reached")
			return nil
		}
		if status.Error {
			code, err := s.alStatusCode(ctx)
			if err != nil {
				return s.stateTimeout(ctx, err, target, last)
			}
			if code != esc.AlNoError {
				s.logger.WithFields(log.Fields{
					"requested": target,
					"current":   status.State,
				}).Errorf("slave in error : %v", code)
				return &StateTransitionError{Slave: s.Address(), Requested: target, Current: status.State, Code: code}
			}
		}
		if err := s.timeouts.Tick(ctx); err != nil {
			return s.stateTimeout(ctx, err, target, last)
		}
	}
}

func (s *Slave) stateTimeout(ctx context.Context, err error, target esc.SlaveState, current esc.SlaveState) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.WithFields(log.Fields{
			"requested": target,
			"current":   current,
		}).Error("state transition timeout")
		return fmt.Errorf("%w : slave x%x did not reach %v, still %v", ethercat.ErrTimeout, s.Address(), target, current)
	}
	return err
}

// TransitionTo requests target then waits for the slave to reach it.
func (s *Slave) TransitionTo(ctx context.Context, target esc.SlaveState) error {
	if err := s.RequestState(ctx, target); err != nil {
		return err
	}
	return s.WaitForState(ctx, target)
}
