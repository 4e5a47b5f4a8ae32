package signature

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Signature-Timestamp"
	HeaderAlgorithm = "X-Signature-Algorithm"
)

// Request is the minimal view of an inbound delivery the gate inspects:
// the raw body bytes exactly as received and the transport headers.
type Request struct {
	Headers map[string]string
	Body    []byte
}

// Gate verifies inbound deliveries before anything else touches them.
// Every rejection path returns a classified error; nothing about a failed
// delivery is admitted.
type Gate struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

type GateOption func(*Gate)

func WithTolerance(tolerance time.Duration) GateOption {
	return func(g *Gate) {
		if tolerance > 0 {
			g.tolerance = tolerance
		}
	}
}

func WithNow(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGate(secret string, opts ...GateOption) (*Gate, error) {
	if secret == "" {
		return nil, fmt.Errorf("signature: gate secret is required")
	}
	gate := &Gate{
		secret:    secret,
		tolerance: 300 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(gate)
	}
	return gate, nil
}

// Verify admits or rejects one delivery. On success it returns the
// immutable signature metadata recorded alongside the event.
func (g *Gate) Verify(req Request) (core.SignatureMeta, error) {
	if g == nil || g.secret == "" {
		return core.SignatureMeta{}, invalidSignatureError("signature gate is not configured")
	}
	if len(req.Body) == 0 {
		return core.SignatureMeta{}, invalidPayloadError("raw request body is required for signature verification")
	}

	provided := headerValue(req.Headers, HeaderSignature)
	timestampRaw := headerValue(req.Headers, HeaderTimestamp)
	algorithmRaw := headerValue(req.Headers, HeaderAlgorithm)
	if provided == "" || timestampRaw == "" || algorithmRaw == "" {
		return core.SignatureMeta{}, invalidSignatureError("signature headers are missing")
	}

	timestamp, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return core.SignatureMeta{}, invalidPayloadError("signature timestamp is not an integer")
	}
	if timestamp <= 0 {
		return core.SignatureMeta{}, invalidPayloadError("signature timestamp must be positive")
	}

	algorithm, err := ParseAlgorithm(algorithmRaw)
	if err != nil {
		return core.SignatureMeta{}, invalidSignatureError("unsupported signature algorithm")
	}

	now := g.now().Unix()
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(g.tolerance/time.Second) {
		return core.SignatureMeta{}, invalidSignatureError("signature timestamp outside tolerance")
	}

	ok, err := VerifySignature(req.Body, g.secret, provided, algorithm)
	if err != nil {
		return core.SignatureMeta{}, invalidSignatureError("signature could not be verified")
	}
	if !ok {
		return core.SignatureMeta{}, invalidSignatureError("signature mismatch")
	}

	return core.SignatureMeta{
		Algorithm: algorithm,
		Timestamp: timestamp,
		Signature: strings.ToLower(strings.TrimSpace(provided)),
	}, nil
}

func invalidSignatureError(message string) *goerrors.Error {
	return goerrors.New("signature: "+message, goerrors.CategoryAuth).
		WithTextCode(core.GatewayErrorInvalidSignature).
		WithCode(http.StatusUnauthorized)
}

func invalidPayloadError(message string) *goerrors.Error {
	return goerrors.New("signature: "+message, goerrors.CategoryBadInput).
		WithTextCode(core.GatewayErrorInvalidPayload).
		WithCode(http.StatusBadRequest)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
