package middleware

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/studyhall-app/studyhall/internal/database"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/profile"
	"github.com/studyhall-app/studyhall/internal/queue"
	"github.com/studyhall-app/studyhall/internal/request"
	"github.com/studyhall-app/studyhall/internal/services/oidc"
)

// IdentityFromContext extracts the authenticated identity from the request
// context.
func IdentityFromContext(r *http.Request) *models.Identity {
	return request.IdentityFromContext(r)
}

// AuthDeps are the collaborators the auth middleware needs: token
// verification, identity storage, and just-in-time profile provisioning.
type AuthDeps struct {
	Identities   *database.IdentityRepository
	Provisioner  *profile.Provisioner
	OIDCProvider *oidc.Provider
	JWKSManager  *oidc.JWKSManager
	ProviderName string
	JobQueue     queue.JobQueue // optional; schedules repair when provisioning is abandoned
}

// Auth creates authentication middleware that validates bearer tokens against
// the configured OIDC provider and provisions identity and profile rows on
// first sight of a verified subject.
func Auth(deps AuthDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			tokenString := parts[1]

			ctx := r.Context()
			oidcConfig, err := deps.OIDCProvider.GetConfig(ctx, deps.ProviderName)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "Failed to get OIDC configuration")
				return
			}

			if oidcConfig.JWKSUrl == nil {
				respondError(w, http.StatusInternalServerError, "JWKS URL not configured")
				return
			}

			verifier := oidc.NewVerifier(deps.JWKSManager, oidcConfig.Issuer)
			claims, err := verifier.Verify(ctx, tokenString, *oidcConfig.JWKSUrl)
			if err != nil {
				log.Printf("Token verification failed: %v (issuer: %s)", err, oidcConfig.Issuer)
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			identity, err := deps.Identities.GetBySubject(ctx, claims.Sub)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					log.Printf("Database error while fetching identity: %v", err)
					respondError(w, http.StatusInternalServerError, "Database error")
					return
				}

				identity, err = provisionIdentity(r, deps, claims)
				if err != nil {
					log.Printf("Failed to create identity: %v", err)
					respondError(w, http.StatusInternalServerError, "Failed to create identity")
					return
				}
			} else if refreshFromClaims(identity, claims) {
				if err := deps.Identities.UpdateMetadata(ctx, identity); err != nil {
					// Claim drift refresh is best effort; stale metadata is
					// repaired on the next request.
					log.Printf("Failed to refresh identity metadata: %v", err)
				}
			}

			ctx = request.WithIdentity(ctx, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// provisionIdentity inserts the identity row and provisions its profile in
// one transaction. Provisioning failure never blocks identity creation: the
// savepoint contains it and a repair job is scheduled instead.
func provisionIdentity(r *http.Request, deps AuthDeps, claims *models.JWTClaims) (*models.Identity, error) {
	ctx := r.Context()

	now := time.Now()
	identity := &models.Identity{
		ID:            uuid.New(),
		Subject:       claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Metadata:      metadataFromClaims(claims),
	}
	if claims.EmailVerified {
		identity.ConfirmedAt = &now
	}

	tx, err := deps.Identities.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	if err := deps.Identities.CreateTx(ctx, tx, identity); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Failed to roll back identity transaction: %v", rbErr)
		}
		// Another request may have won the race on the subject; re-read.
		if database.IsUniqueViolation(err, "") {
			return deps.Identities.GetBySubject(ctx, claims.Sub)
		}
		return nil, err
	}

	_, provisioned := deps.Provisioner.Provision(ctx, tx, identity, profile.RegistrationFromClaims(claims))

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if !provisioned && deps.JobQueue != nil {
		job := queue.NewJob(queue.JobTypeProfileRepair, identity.ID)
		if err := deps.JobQueue.Enqueue(ctx, job); err != nil {
			log.Printf("Failed to enqueue profile repair for %s: %v", identity.ID, err)
		}
	}

	return identity, nil
}

// metadataFromClaims seeds identity metadata from the verified token.
func metadataFromClaims(claims *models.JWTClaims) map[string]string {
	metadata := make(map[string]string)
	if claims.PreferredUsername != "" {
		metadata[models.MetaHandle] = claims.PreferredUsername
	}
	if claims.GivenName != "" {
		metadata[models.MetaGivenName] = claims.GivenName
	}
	if claims.FamilyName != "" {
		metadata[models.MetaFamilyName] = claims.FamilyName
	}
	if claims.Picture != "" {
		metadata[models.MetaAvatarURL] = claims.Picture
	}
	return metadata
}

// refreshFromClaims folds changed claims into the stored identity and reports
// whether anything moved.
func refreshFromClaims(identity *models.Identity, claims *models.JWTClaims) bool {
	changed := false
	if identity.Email != claims.Email && claims.Email != "" {
		identity.Email = claims.Email
		changed = true
	}
	if claims.EmailVerified && !identity.EmailVerified {
		identity.EmailVerified = true
		changed = true
	}
	for key, value := range map[string]string{
		models.MetaGivenName:  claims.GivenName,
		models.MetaFamilyName: claims.FamilyName,
		models.MetaAvatarURL:  claims.Picture,
	} {
		if value != "" && identity.Metadata[key] != value {
			if identity.Metadata == nil {
				identity.Metadata = make(map[string]string)
			}
			identity.Metadata[key] = value
			changed = true
		}
	}
	return changed
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
