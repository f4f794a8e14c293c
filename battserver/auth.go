package main

import (
	"crypto"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Credentials are stateless: the user name is "<expiry unix>" for access to
// every chip or "<expiry unix>$<chip name>" for one chip, the password is the
// HMAC of the user name under the API key.

func authCalculate(authKey string, chip string, expiry time.Time) (string, string) {
	user := strconv.FormatInt(expiry.Unix(), 10)

	if chip != "" {
		user += "$" + chip
	}

	return user, hex.EncodeToString(authMAC(authKey, user))
}

func authMAC(authKey string, user string) []byte {
	h := hmac.New(crypto.SHA256.New, []byte(authKey))
	h.Write([]byte(user))
	return h.Sum(nil)
}

// chipRoutes maps the first path element of every chip route, index and name,
// to the chip name.
type chipRoutes map[string]string

func newChipRoutes(names []string) chipRoutes {
	routes := make(chipRoutes)
	for i, m := range names {
		routes[strconv.Itoa(i)] = m
		routes[m] = m
	}
	return routes
}

// chipOf returns the chip a request path addresses, or "" for server wide
// paths such as the chip list and the metrics.
func (r chipRoutes) chipOf(path string) string {
	elem := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	return r[elem]
}

// authProcess checks credentials made by authCalculate. A credential scoped to
// a chip only opens that chip's routes, under its name or its index.
func authProcess(handler http.HandlerFunc, authKey string, routes chipRoutes) http.HandlerFunc {
	if len(authKey) == 0 {
		return handler
	}

	failed := func(rw http.ResponseWriter, status int) {
		if status == http.StatusUnauthorized {
			rw.Header().Set("WWW-Authenticate", `Basic realm="battid"`)
		}
		rw.WriteHeader(status)
	}

	return func(rw http.ResponseWriter, rq *http.Request) {
		user, pwd, ok := rq.BasicAuth()
		if !ok {
			failed(rw, http.StatusUnauthorized)
			return
		}

		pwdDec, err := hex.DecodeString(pwd)
		if err != nil || subtle.ConstantTimeCompare(pwdDec, authMAC(authKey, user)) != 1 {
			failed(rw, http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(user, "$", 2)

		expiry, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || time.Now().Unix() > expiry {
			failed(rw, http.StatusUnauthorized)
			return
		}

		if len(parts) == 2 && routes.chipOf(rq.URL.Path) != parts[1] {
			failed(rw, http.StatusForbidden)
			return
		}

		handler(rw, rq)
	}
}
