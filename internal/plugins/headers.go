package plugins

import (
	"errors"
	"fmt"
	"net/http"
)

var errInvalidList = errors.New("expected a list of non-empty strings")

func toStringMap(v interface{}) (map[string]string, error) {
	res := map[string]string{}
	if v == nil {
		return res, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected object for headers config")
	}
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("header %s must be a string", k)
		}
		res[k] = s
	}
	return res, nil
}

// The headers plugin sets static headers.
// Settings:
//
//	set:          response headers, e.g. {X-App: Furnace}
//	request_set:  request headers seen by the routes
func init() {
	Register("headers", func(settings map[string]interface{}) (Middleware, error) {
		resp, err := toStringMap(settings["set"])
		if err != nil {
			return nil, err
		}
		req, err := toStringMap(settings["request_set"])
		if err != nil {
			return nil, err
		}

		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range req {
					r.Header.Set(k, v)
				}
				for k, v := range resp {
					w.Header().Set(k, v)
				}
				next.ServeHTTP(w, r)
			})
		}, nil
	})
}
