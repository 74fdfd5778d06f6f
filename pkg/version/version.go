package version

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/shishobooks/comicseed/pkg/version.Version=v1.2.0" ./cmd/seed
var Version = "dev"
