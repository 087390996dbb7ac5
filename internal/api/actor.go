package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
)

// Identity headers set by the authenticating proxy in front of the API.
const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
	headerCityID = "X-City-ID"
)

var errUnauthenticated = errors.New("missing or malformed identity headers")

// actorFromRequest reads the caller identity. The city header is optional for admins.
func actorFromRequest(r *http.Request) (domain.Actor, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(headerUserID)), 10, 64)
	if err != nil || userID <= 0 {
		return domain.Actor{}, errUnauthenticated
	}
	role, err := domain.ParseRole(strings.ToUpper(strings.TrimSpace(r.Header.Get(headerRole))))
	if err != nil {
		return domain.Actor{}, errUnauthenticated
	}

	actor := domain.Actor{UserID: userID, Role: role}
	if raw := strings.TrimSpace(r.Header.Get(headerCityID)); raw != "" {
		if actor.CityID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return domain.Actor{}, errUnauthenticated
		}
	}
	if actor.IsTreasurer() && actor.CityID <= 0 {
		return domain.Actor{}, errUnauthenticated
	}
	return actor, nil
}
