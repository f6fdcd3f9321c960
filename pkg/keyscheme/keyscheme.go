// Package keyscheme maps GOES-R satellites, products and timestamps to the
// key layout of the NOAA GOES archive on S3 and back.
//
// Objects live in one bucket per satellite (noaa-goes16, noaa-goes17, ...)
// under <product>/<YYYY>/<DDD>/<HH>/<file>, where DDD is the day of year and
// HH the hour of the scan start. Mirrored files keep the bucket name as the
// first directory so that several satellites can share one local root.
package keyscheme

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// BucketPrefix is prepended to a platform identifier to form its bucket.
	BucketPrefix = "noaa-goes"

	// URIScheme is the store specific prefix stripped from remote keys.
	URIScheme = "s3://"

	fileExtension = ".nc"
)

// KnownPlatforms lists the GOES-R satellites published in the archive.
var KnownPlatforms = []string{"16", "17", "18", "19"}

// DefaultPlatforms returns a fresh copy of KnownPlatforms.
func DefaultPlatforms() []string {
	return append([]string(nil), KnownPlatforms...)
}

// Prefix is a listing location: a bucket and a key prefix inside it.
type Prefix struct {
	Bucket string
	Prefix string
}

func (p Prefix) String() string {
	return URIScheme + p.Bucket + "/" + p.Prefix
}

// BucketFor returns the bucket name of a platform ("16" -> "noaa-goes16").
func BucketFor(platform string) string {
	return BucketPrefix + platform
}

// ValidatePlatform checks that a platform identifier is a bare satellite number.
func ValidatePlatform(platform string) error {
	if platform == "" {
		return fmt.Errorf("platform must not be empty")
	}
	if !isDigits(platform) {
		return fmt.Errorf("platform %q must be a satellite number such as 16", platform)
	}
	return nil
}

// PrefixesFor returns one prefix per (platform, product, UTC calendar day)
// touching [start, end). Ordering is platform-major, then product, then day.
func PrefixesFor(platforms, products []string, start, end time.Time) []Prefix {
	days := daysIn(start, end)
	prefixes := make([]Prefix, 0, len(platforms)*len(products)*len(days))
	for _, platform := range platforms {
		for _, product := range products {
			for _, day := range days {
				prefixes = append(prefixes, Prefix{
					Bucket: BucketFor(platform),
					Prefix: dayPrefix(product, day),
				})
			}
		}
	}
	return prefixes
}

func daysIn(start, end time.Time) []time.Time {
	start = start.UTC()
	end = end.UTC()

	var days []time.Time
	for day := truncateDay(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayPrefix(product string, day time.Time) string {
	return fmt.Sprintf("%s/%04d/%03d/", product, day.Year(), day.YearDay())
}

// LocalPathFor mirrors a remote key ("s3://noaa-goes16/ABI-L1b-RadF/2020/103/00/f.nc"
// or "noaa-goes16/ABI-L1b-RadF/...") as a slash separated relative path.
func LocalPathFor(remoteKey string) string {
	return path.Clean(strings.TrimPrefix(strings.TrimPrefix(remoteKey, URIScheme), "/"))
}

// FilenameOf returns the last path element of a remote key.
func FilenameOf(remoteKey string) string {
	return path.Base(remoteKey)
}

// InferRelativePath returns the canonical relative path of a bare file name.
// For every key K laid out by this scheme,
// InferRelativePath(FilenameOf(K)) == LocalPathFor(K).
func InferRelativePath(fileName string) (string, error) {
	name, err := ParseName(fileName)
	if err != nil {
		return "", err
	}
	return name.RelativePath(), nil
}
