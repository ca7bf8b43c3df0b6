package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/chimera/go/clients"
	"github.com/mcdev12/chimera/go/internal/models"
)

// ErrorKind classifies a failed snapshot read.
type ErrorKind string

const (
	KindNotFoundOrError ErrorKind = "not_found_or_error"
	KindNetworkFailure  ErrorKind = "network_failure"
	KindUnauthorized    ErrorKind = "unauthorized"
)

// FetchError is the typed failure of a single snapshot read.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindNotFoundOrError:
		return "Game not found or an error occurred"
	case KindUnauthorized:
		return "Unauthorized"
	default:
		return "Could not load game data."
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is an unauthorized FetchError.
func IsUnauthorized(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindUnauthorized
}

// GameReader is the read side of the game API.
type GameReader interface {
	GetGame(ctx context.Context, gameID string) (*models.GameSnapshot, error)
}

// Fetcher performs one authenticated read of a game record and classifies
// the outcome. It never redirects or signs out on its own.
type Fetcher struct {
	reader GameReader
}

func NewFetcher(reader GameReader) *Fetcher {
	return &Fetcher{reader: reader}
}

func (f *Fetcher) Fetch(ctx context.Context, gameID string) (*models.GameSnapshot, error) {
	snap, err := f.reader.GetGame(ctx, gameID)
	if err != nil {
		return nil, classify(err)
	}
	if snap == nil {
		return nil, &FetchError{Kind: KindNotFoundOrError, Err: errors.New("empty snapshot")}
	}
	if err := snap.Validate(); err != nil {
		return nil, &FetchError{Kind: KindNotFoundOrError, Err: fmt.Errorf("invalid snapshot: %w", err)}
	}
	return snap, nil
}

func classify(err error) *FetchError {
	if clients.IsUnauthorized(err) {
		return &FetchError{Kind: KindUnauthorized, Err: err}
	}
	if clients.StatusCode(err) != 0 || errors.Is(err, clients.ErrMalformedResponse) {
		return &FetchError{Kind: KindNotFoundOrError, Err: err}
	}
	return &FetchError{Kind: KindNetworkFailure, Err: err}
}
