package sentry_transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DSN is the parsed form of a Sentry DSN. It is resolved once at configure
// time and immutable afterwards.
type DSN struct {
	Raw       string
	Scheme    string
	PublicKey string
	Host      string
	Port      int
	Path      string
	ProjectID string

	// EnvelopeURL is the fully-qualified envelope submission endpoint.
	EnvelopeURL string
}

// ParseDSN parses a Sentry DSN string of the form
// scheme://publicKey@host[:port]/[path/]projectID.
func ParseDSN(dsnStr string) (*DSN, error) {
	if dsnStr == "" {
		return nil, fmt.Errorf("DSN is empty")
	}

	parsedURL, err := url.Parse(dsnStr)
	if err != nil {
		return nil, fmt.Errorf("the %q DSN is invalid: %w", dsnStr, err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path == "" ||
		parsedURL.User == nil || parsedURL.User.Username() == "" {
		return nil, fmt.Errorf("the %q DSN must contain a scheme, a host, a user and a path component", dsnStr)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("the scheme of the %q DSN must be either \"http\" or \"https\"", dsnStr)
	}

	publicKey := parsedURL.User.Username()

	port := 80
	if parsedURL.Scheme == "https" {
		port = 443
	}
	if parsedURL.Port() != "" {
		portNum, err := strconv.Atoi(parsedURL.Port())
		if err != nil {
			return nil, fmt.Errorf("the port of the %q DSN is invalid", dsnStr)
		}
		port = portNum
	}

	pathSegments := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	projectID := pathSegments[len(pathSegments)-1]
	if projectID == "" {
		return nil, fmt.Errorf("the %q DSN path must contain a project ID", dsnStr)
	}

	path := "/"
	if len(pathSegments) > 1 {
		path = "/" + strings.Join(pathSegments[:len(pathSegments)-1], "/")
	}

	dsn := &DSN{
		Raw:       dsnStr,
		Scheme:    parsedURL.Scheme,
		PublicKey: publicKey,
		Host:      parsedURL.Hostname(),
		Port:      port,
		Path:      path,
		ProjectID: projectID,
	}
	dsn.EnvelopeURL = dsn.baseEndpointURL() + "/envelope/"

	return dsn, nil
}

// AuthHeader returns the X-Sentry-Auth value for requests signed by this DSN.
func (d *DSN) AuthHeader() string {
	return fmt.Sprintf("Sentry sentry_version=7, sentry_key=%s", d.PublicKey)
}

func (d *DSN) baseEndpointURL() string {
	u := fmt.Sprintf("%s://%s", d.Scheme, d.Host)

	if (d.Scheme == "http" && d.Port != 80) || (d.Scheme == "https" && d.Port != 443) {
		u += fmt.Sprintf(":%d", d.Port)
	}

	if d.Path != "" && d.Path != "/" {
		u += strings.TrimSuffix(d.Path, "/")
	}

	return u + "/api/" + d.ProjectID
}
