package platform

import (
	"fmt"
	"net/http"
	"time"
)

// Category is the kind of a game notice.
type Category string

const (
	FirstBlood      Category = "FirstBlood"
	SecondBlood     Category = "SecondBlood"
	ThirdBlood      Category = "ThirdBlood"
	NewAnnouncement Category = "NewAnnouncement"
	NewHint         Category = "NewHint"
)

// Valid reports whether c is one of the categories above.
func (c Category) Valid() bool {
	switch c {
	case FirstBlood, SecondBlood, ThirdBlood, NewAnnouncement, NewHint:
		return true
	}
	return false
}

// Notice is one game announcement as returned by the notices endpoint.
// Data is interpreted per category (team/challenge names, announcement lines).
type Notice struct {
	ID        int64     `json:"notice_id"`
	Category  Category  `json:"notice_category"`
	CreatedAt time.Time `json:"create_time"`
	Data      []string  `json:"data"`
}

type noticesResponse struct {
	Code int      `json:"code"`
	Data []Notice `json:"data"`
}

// Challenge is a proof-of-work CAPTCHA as issued by the platform.
type Challenge struct {
	Token      string
	Count      int
	SaltLen    int
	Difficulty int
	Expires    time.Time
}

type challengeResponse struct {
	Challenge struct {
		C int `json:"c"`
		S int `json:"s"`
		D int `json:"d"`
	} `json:"challenge"`
	Token   string `json:"token"`
	Expires int64  `json:"expires"` // unix millis
}

type redeemRequest struct {
	Token     string   `json:"token"`
	Solutions []uint64 `json:"solutions"`
}

type redeemResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

type loginResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LoginResult is the outcome of the authenticate call.
// Cookie is set only when Code is 200.
type LoginResult struct {
	Code    int
	Message string
	Cookie  string
}

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: http %d", e.Op, e.Code)
}

// Is lets errors.Is match the status sentinels below.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}
