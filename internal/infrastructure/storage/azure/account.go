package azure

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// developmentAccountName is the well-known Azurite account.
const developmentAccountName = "devstoreaccount1"

// AccountNameFromConnectionString extracts the AccountName segment of a connection string.
func AccountNameFromConnectionString(connectionString string) (string, error) {
	var blobEndpoint string
	for _, part := range strings.Split(connectionString, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "accountname":
			if v != "" {
				return v, nil
			}
		case "usedevelopmentstorage":
			if strings.EqualFold(v, "true") {
				return developmentAccountName, nil
			}
		case "blobendpoint":
			blobEndpoint = v
		}
	}
	if blobEndpoint != "" {
		return AccountNameFromServiceURL(blobEndpoint)
	}
	return "", fmt.Errorf("connection string has no account name")
}

// AccountNameFromServiceURL extracts the account from a blob service URL. Host-style URLs
// carry it in the first host label, IP or localhost (emulator) URLs in the first path segment.
func AccountNameFromServiceURL(serviceURL string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("invalid service url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("service url %q has no host", serviceURL)
	}
	if host == "localhost" || net.ParseIP(host) != nil {
		segment, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if segment == "" {
			return "", fmt.Errorf("service url %q has no account segment", serviceURL)
		}
		return segment, nil
	}
	label, _, _ := strings.Cut(host, ".")
	return label, nil
}
