// Package buildinfo exposes version information injected via ldflags:
//
//	go build -ldflags "-X github.com/mmsocial/mmclient/internal/infra/buildinfo.Version=v0.3.0 \
//	  -X github.com/mmsocial/mmclient/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// When the binary is built without ldflags, Commit and GoVersion fall back
// to what the Go toolchain embedded via runtime/debug.
package buildinfo
