package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when running in Docker,
// so Redis or OpenSearch running on the host machine stays reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return rewriteLoopback(host)
}

// ResolveURLForDocker applies ResolveHostForDocker to the host part of a URL,
// keeping scheme, port and path. Unparseable input is returned unchanged.
func ResolveURLForDocker(raw string) string {
	if !IsRunningInDocker() || raw == "" {
		return raw
	}
	return rewriteURLHost(raw)
}

func rewriteLoopback(host string) string {
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

func rewriteURLHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		u.Host = rewriteLoopback(u.Host)
		return u.String()
	}
	u.Host = net.JoinHostPort(rewriteLoopback(host), port)
	return u.String()
}
