package slave

import (
	"context"
	"errors"
	"strings"

	"github.com/samsamfire/goethercat/pkg/coe"
)

// SdoReadRaw uploads index / subIndex into buf and returns the filled part.
func (s *Slave) SdoReadRaw(ctx context.Context, index uint16, subIndex uint8, buf []byte) ([]byte, error) {
	client, err := s.Coe(ctx)
	if err != nil {
		return nil, err
	}
	return client.Upload(ctx, index, subIndex, buf)
}

// SdoReadComplete uploads every sub index of index with complete access.
func (s *Slave) SdoReadComplete(ctx context.Context, index uint16, buf []byte) ([]byte, error) {
	client, err := s.Coe(ctx)
	if err != nil {
		return nil, err
	}
	return client.UploadComplete(ctx, index, buf)
}

// SdoWriteRaw downloads data, at most 4 bytes.
func (s *Slave) SdoWriteRaw(ctx context.Context, index uint16, subIndex uint8, data []byte) error {
	client, err := s.Coe(ctx)
	if err != nil {
		return err
	}
	return client.Download(ctx, index, subIndex, data)
}

func SdoRead[T any](ctx context.Context, s *Slave, index uint16, subIndex uint8) (T, error) {
	var value T
	client, err := s.Coe(ctx)
	if err != nil {
		return value, err
	}
	return coe.Read[T](ctx, client, index, subIndex)
}

func SdoWrite[T any](ctx context.Context, s *Slave, index uint16, subIndex uint8, value T) error {
	client, err := s.Coe(ctx)
	if err != nil {
		return err
	}
	return coe.Write(ctx, client, index, subIndex, value)
}

// ReadIdentity reads object 0x1018 and stores the result in the handle.
// Only the vendor id is mandatory, entries the slave does not have are left
// to 0. Any other failure is returned.
func (s *Slave) ReadIdentity(ctx context.Context) (Identity, error) {
	vendorId, err := SdoRead[uint32](ctx, s, 0x1018, 1)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{VendorId: vendorId}
	for i, field := range []*uint32{&identity.ProductCode, &identity.RevisionNumber, &identity.SerialNumber} {
		subIndex := uint8(i + 2)
		value, err := SdoRead[uint32](ctx, s, 0x1018, subIndex)
		switch {
		case err == nil:
			*field = value
		case errors.Is(err, coe.AbortSubUnknown), errors.Is(err, coe.AbortNotExist):
			s.logger.WithField("subindex", subIndex).Debug("identity entry not available")
		default:
			return Identity{}, err
		}
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return identity, nil
}

func (s *Slave) readString(ctx context.Context, index uint16) (string, error) {
	raw := make([]byte, 256)
	data, err := s.SdoReadRaw(ctx, index, 0, raw)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// Read manufacturer device name (0x1008)
func (s *Slave) ReadDeviceName(ctx context.Context) (string, error) {
	return s.readString(ctx, 0x1008)
}

// Read manufacturer hardware version (0x1009)
func (s *Slave) ReadHardwareVersion(ctx context.Context) (string, error) {
	return s.readString(ctx, 0x1009)
}

// Read manufacturer software version (0x100A)
func (s *Slave) ReadSoftwareVersion(ctx context.Context) (string, error) {
	return s.readString(ctx, 0x100A)
}
