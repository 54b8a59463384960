package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/ids"
	"clinicore.dev/internal/obs"
)

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 14 * 24 * time.Hour
	defaultSessionLifetime = 30 * 24 * time.Hour
)

// Claims is the access credential payload.
type Claims struct {
	Role     string `json:"role"`
	ClinicID string `json:"cid"`
	FamilyID string `json:"fid"`
	jwt.RegisteredClaims
}

// Issuer mints and rotates credential pairs. All refresh state lives in
// the family store; access credentials are verified offline.
type Issuer struct {
	store    Store
	recorder audit.Recorder
	secret   []byte

	now         func() time.Time
	accessTTL   time.Duration
	refreshTTL  time.Duration
	maxLifetime time.Duration
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.accessTTL = ttl }
}

func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.refreshTTL = ttl }
}

// WithSessionMaxLifetime caps the total age of a family regardless of
// rotation activity.
func WithSessionMaxLifetime(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.maxLifetime = d }
}

func WithAuditRecorder(rec audit.Recorder) IssuerOption {
	return func(i *Issuer) { i.recorder = rec }
}

func NewIssuer(store Store, secret []byte, opts ...IssuerOption) *Issuer {
	iss := &Issuer{
		store:       store,
		recorder:    audit.NopRecorder{},
		secret:      secret,
		now:         time.Now,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		maxLifetime: defaultSessionLifetime,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// Issue starts a new session family at generation zero and returns the
// first credential pair.
func (i *Issuer) Issue(ctx context.Context, p Principal) (*TokenPair, error) {
	now := i.now()
	fam := &SessionFamily{
		ID:         ids.New(),
		UserID:     p.UserID,
		ClinicID:   p.ClinicID,
		Role:       p.Role,
		Generation: 0,
		CreatedAt:  now,
		RotatedAt:  now,
	}
	refresh, hash, err := mintRefresh(fam.ID, fam.Generation)
	if err != nil {
		return nil, err
	}
	fam.RefreshHash = hash
	if err := i.store.Families(ctx).Create(ctx, fam); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	pair, err := i.pair(p, fam.ID, refresh, now)
	if err != nil {
		return nil, err
	}
	i.recorder.Record(ctx, audit.Entry{
		ActorID:  p.UserID,
		ClinicID: p.ClinicID,
		Action:   audit.ActionLoginSuccess,
		Severity: audit.SeverityInfo,
		Resource: "session:" + fam.ID,
	})
	return pair, nil
}

// Rotate exchanges a refresh credential for the next pair. Presenting a
// superseded generation of a live family is treated as replay: the whole
// family is revoked and ErrCredentialReused returned.
func (i *Issuer) Rotate(ctx context.Context, refreshToken string) (*TokenPair, Principal, error) {
	familyID, gen, err := decodeRefresh(refreshToken)
	if err != nil {
		return nil, Principal{}, ErrInvalidCredential
	}
	fams := i.store.Families(ctx)
	fam, err := fams.Get(ctx, familyID)
	if err != nil {
		if err == ErrNotFound {
			return nil, Principal{}, ErrInvalidCredential
		}
		return nil, Principal{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	p := Principal{UserID: fam.UserID, ClinicID: fam.ClinicID, Role: fam.Role}
	now := i.now()

	// Revocation dominates every other outcome, including replay.
	if fam.Revoked {
		return nil, Principal{}, ErrInvalidCredential
	}
	if !now.Before(fam.CreatedAt.Add(i.maxLifetime)) {
		_ = fams.Revoke(ctx, fam.ID)
		return nil, Principal{}, ErrInvalidCredential
	}
	if gen < fam.Generation {
		return nil, Principal{}, i.reuseDetected(ctx, fam, p)
	}
	if gen > fam.Generation {
		return nil, Principal{}, ErrInvalidCredential
	}
	if subtle.ConstantTimeCompare([]byte(hashRefresh(refreshToken)), []byte(fam.RefreshHash)) != 1 {
		return nil, Principal{}, ErrInvalidCredential
	}

	nextGen := fam.Generation + 1
	refresh, hash, err := mintRefresh(fam.ID, nextGen)
	if err != nil {
		return nil, Principal{}, err
	}
	swapped, err := fams.CASAdvanceGeneration(ctx, fam.ID, fam.Generation, hash)
	if err != nil {
		return nil, Principal{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !swapped {
		// Lost the race to a concurrent rotation of the same
		// generation; the credential has effectively been replayed.
		return nil, Principal{}, i.reuseDetected(ctx, fam, p)
	}
	pair, err := i.pair(p, fam.ID, refresh, now)
	if err != nil {
		return nil, Principal{}, err
	}
	i.recorder.Record(ctx, audit.Entry{
		ActorID:  p.UserID,
		ClinicID: p.ClinicID,
		Action:   audit.ActionTokenRefreshed,
		Severity: audit.SeverityInfo,
		Resource: "session:" + fam.ID,
		Metadata: map[string]string{"generation": strconv.FormatInt(nextGen, 10)},
	})
	obs.ObserveRotation("success")
	return pair, p, nil
}

func (i *Issuer) reuseDetected(ctx context.Context, fam *SessionFamily, p Principal) error {
	if err := i.store.Families(ctx).Revoke(ctx, fam.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	i.recorder.Record(ctx, audit.Entry{
		ActorID:  p.UserID,
		ClinicID: p.ClinicID,
		Action:   audit.ActionTokenReuse,
		Severity: audit.SeverityCritical,
		Resource: "session:" + fam.ID,
	})
	obs.IncReuseDetected()
	obs.ObserveRotation("reuse")
	return ErrCredentialReused
}

// Verify checks an access credential offline: signature and expiry only.
// No store round-trip, so mid-window revocations are not visible here.
func (i *Issuer) Verify(token string) (Principal, error) {
	p, _, err := i.parseAccess(token)
	return p, err
}

// Session verifies an access credential and also returns the session
// family it belongs to.
func (i *Issuer) Session(token string) (Principal, string, error) {
	return i.parseAccess(token)
}

func (i *Issuer) parseAccess(token string) (Principal, string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, "", ErrInvalidCredential
	}
	if claims.ExpiresAt == nil {
		return Principal{}, "", ErrInvalidCredential
	}
	role, err := ParseRole(claims.Role)
	if err != nil || claims.Subject == "" || claims.ClinicID == "" {
		return Principal{}, "", ErrInvalidCredential
	}
	p := Principal{UserID: claims.Subject, ClinicID: claims.ClinicID, Role: role}
	// A credential expiring exactly now is already expired. The principal
	// and family are still returned so callers like logout can act on a
	// stale but authentic credential.
	if !i.now().Before(claims.ExpiresAt.Time) {
		return p, claims.FamilyID, ErrExpired
	}
	return p, claims.FamilyID, nil
}

// Revoke invalidates a whole family. Unknown families are a no-op.
func (i *Issuer) Revoke(ctx context.Context, familyID string) error {
	if err := i.store.Families(ctx).Revoke(ctx, familyID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (i *Issuer) pair(p Principal, familyID, refresh string, now time.Time) (*TokenPair, error) {
	accessExp := now.Add(i.accessTTL)
	claims := Claims{
		Role:     string(p.Role),
		ClinicID: p.ClinicID,
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: now.Add(i.refreshTTL),
	}, nil
}

// mintRefresh returns an opaque refresh credential and its stored hash.
// The credential embeds family and generation so rotation can locate the
// family without a secondary index.
func mintRefresh(familyID string, gen int64) (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("mint refresh token: %w", err)
	}
	token = familyID + "." + strconv.FormatInt(gen, 10) + "." + base64.RawURLEncoding.EncodeToString(buf)
	return token, hashRefresh(token), nil
}

func hashRefresh(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func decodeRefresh(token string) (familyID string, gen int64, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", 0, fmt.Errorf("malformed refresh token")
	}
	gen, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || gen < 0 {
		return "", 0, fmt.Errorf("malformed refresh token")
	}
	return parts[0], gen, nil
}
