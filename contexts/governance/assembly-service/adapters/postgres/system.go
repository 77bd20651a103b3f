package postgresadapter

import (
	"context"
	"time"

	"condominia/contexts/governance/assembly-service/ports"

	"github.com/google/uuid"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ ports.Clock       = SystemClock{}
	_ ports.IDGenerator = UUIDGenerator{}
)
