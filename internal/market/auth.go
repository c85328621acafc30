package market

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-compute-market/constants"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/lagrangedao/go-compute-market/wallet"
)

const callerKey = "market.caller"

const (
	maxNonceLength     = 64
	maxSignedBodyBytes = 1 << 20
)

// SigningMessage is the payload a caller signs for one request:
// "METHOD\nPATH\nTIMESTAMP\nNONCE\nBODY".
func SigningMessage(method, path, timestamp, nonce string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(timestamp)
	buf.WriteByte('\n')
	buf.WriteString(nonce)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// Authenticator resolves the caller of a mutating request. When signatures
// are not required the address header is trusted as is. A signed request is
// accepted once: its nonce is claimed until the timestamp leaves the window.
type Authenticator struct {
	requireSignature bool
	ttl              time.Duration
	nonces           NonceCache
	now              func() time.Time
}

// NewAuthenticator falls back to an in-memory nonce cache when nonces is nil.
func NewAuthenticator(requireSignature bool, ttl time.Duration, nonces NonceCache) *Authenticator {
	if nonces == nil {
		nonces = NewMemoryNonceCache()
	}
	return &Authenticator{
		requireSignature: requireSignature,
		ttl:              ttl,
		nonces:           nonces,
		now:              time.Now,
	}
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := a.authenticate(c.Request)
		if _, rejected := err.(authError); rejected {
			logs.GetLogger().Warnf("rejected request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError, err.Error()))
			return
		}
		if err != nil {
			logs.GetLogger().Errorf("authenticating request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, util.CreateErrorResponse(util.ServerError, err.Error()))
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	address := r.Header.Get(constants.HEADER_ADDRESS)
	if address == "" {
		return "", errMissingHeader(constants.HEADER_ADDRESS)
	}
	if !a.requireSignature {
		return wallet.NormalizeAddress(address), nil
	}
	if !wallet.IsAddress(address) {
		return "", authError("invalid caller address: " + address)
	}

	timestamp := r.Header.Get(constants.HEADER_TIMESTAMP)
	if timestamp == "" {
		return "", errMissingHeader(constants.HEADER_TIMESTAMP)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", authError("invalid timestamp: " + timestamp)
	}
	now := a.now()
	age := now.Sub(time.Unix(ts, 0))
	if age > a.ttl || age < -a.ttl {
		return "", authError("request timestamp outside the accepted window")
	}

	nonce := r.Header.Get(constants.HEADER_NONCE)
	if nonce == "" {
		return "", errMissingHeader(constants.HEADER_NONCE)
	}
	if len(nonce) > maxNonceLength {
		return "", authError("nonce longer than " + strconv.Itoa(maxNonceLength) + " bytes")
	}

	sigHex := r.Header.Get(constants.HEADER_SIGNATURE)
	if sigHex == "" {
		return "", errMissingHeader(constants.HEADER_SIGNATURE)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return "", authError("invalid signature encoding")
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(http.MaxBytesReader(nil, r.Body, maxSignedBodyBytes))
		if err != nil {
			return "", authError("reading request body: " + err.Error())
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	ok, err := wallet.Verify(address, sig, SigningMessage(r.Method, r.URL.Path, timestamp, nonce, body))
	if err != nil {
		return "", authError("invalid signature: " + err.Error())
	}
	if !ok {
		return "", authError("signature does not match " + address)
	}

	caller := wallet.NormalizeAddress(address)
	// keep the nonce until the timestamp itself would be rejected
	retain := time.Unix(ts, 0).Add(a.ttl).Sub(now) + time.Second
	fresh, err := a.nonces.Claim(r.Context(), caller, nonce, retain)
	if err != nil {
		return "", err
	}
	if !fresh {
		return "", authError("request nonce already used")
	}
	return caller, nil
}

// Caller returns the authenticated caller set by the middleware.
func Caller(c *gin.Context) string {
	return c.GetString(callerKey)
}

type authError string

func (e authError) Error() string {
	return string(e)
}

func errMissingHeader(name string) error {
	return authError("missing header " + name)
}
