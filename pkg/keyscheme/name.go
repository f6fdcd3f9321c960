package keyscheme

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// UnrecognizedNameError is returned when a file name does not follow the
// archive naming convention.
type UnrecognizedNameError struct {
	Name   string
	Reason string
}

func (err *UnrecognizedNameError) Error() string {
	return fmt.Sprintf("unrecognized file name %q: %s", err.Name, err.Reason)
}

// Name holds the tokens parsed out of an archive file name such as
// OR_ABI-L1b-RadF-M6C09_G16_s20201030000123_e20201030009431_c20201030009478.nc.
type Name struct {
	FileName string
	Product  string
	Sector   string
	Mode     string
	Platform string
	Start    time.Time
}

// Bucket returns the bucket holding the file.
func (n Name) Bucket() string {
	return BucketFor(n.Platform)
}

// RelativePath returns the canonical mirror path of the file.
func (n Name) RelativePath() string {
	return path.Join(
		n.Bucket(),
		n.Product,
		fmt.Sprintf("%04d", n.Start.Year()),
		fmt.Sprintf("%03d", n.Start.YearDay()),
		fmt.Sprintf("%02d", n.Start.Hour()),
		n.FileName,
	)
}

// ParseName parses a bare file name. Directory components are rejected.
func ParseName(fileName string) (Name, error) {
	fail := func(format string, args ...interface{}) (Name, error) {
		return Name{}, &UnrecognizedNameError{Name: fileName, Reason: fmt.Sprintf(format, args...)}
	}

	if fileName == "" || strings.ContainsAny(fileName, `/\`) {
		return fail("not a bare file name")
	}
	if !strings.HasSuffix(fileName, fileExtension) {
		return fail("missing %s extension", fileExtension)
	}

	parts := strings.Split(strings.TrimSuffix(fileName, fileExtension), "_")
	if len(parts) < 4 {
		return fail("expected at least 4 underscore separated tokens, got %d", len(parts))
	}
	if parts[0] == "" {
		return fail("empty system environment token")
	}

	product, mode := splitProduct(parts[1])
	if product == "" || !strings.Contains(product, "-") {
		return fail("invalid product token %q", parts[1])
	}
	product, sector := splitSector(product)

	platform, ok := parsePlatform(parts[2])
	if !ok {
		return fail("invalid platform token %q", parts[2])
	}

	start, err := parseStart(parts[3])
	if err != nil {
		return fail("invalid start token %q: %v", parts[3], err)
	}

	return Name{
		FileName: fileName,
		Product:  product,
		Sector:   sector,
		Mode:     mode,
		Platform: platform,
		Start:    start,
	}, nil
}

// splitProduct separates a trailing scan mode token ("M6C09", "M3") from the
// product, which is how ABI products are named. Products without one, such as
// GLM-L2-LCFA, are returned whole.
func splitProduct(token string) (product, mode string) {
	i := strings.LastIndex(token, "-")
	if i < 0 {
		return token, ""
	}
	last := token[i+1:]
	if len(last) >= 2 && last[0] == 'M' && isDigits(last[1:2]) {
		return token[:i], last
	}
	return token, ""
}

// splitSector drops the mesoscale sector number from products such as
// ABI-L1b-RadM1, whose files are stored under ABI-L1b-RadM.
func splitSector(product string) (string, string) {
	n := len(product)
	if n >= 2 && product[n-2] == 'M' && isDigits(product[n-1:]) {
		return product[:n-1], product[n-1:]
	}
	return product, ""
}

func parsePlatform(token string) (string, bool) {
	if len(token) < 2 || token[0] != 'G' || !isDigits(token[1:]) {
		return "", false
	}
	return token[1:], true
}

// parseStart reads s<YYYY><DDD><HH>[<MM>[<SS>[<tenths>]]].
func parseStart(token string) (time.Time, error) {
	if len(token) < 10 || token[0] != 's' {
		return time.Time{}, fmt.Errorf("want s followed by at least YYYYDDDHH")
	}
	digits := token[1:]
	if !isDigits(digits) {
		return time.Time{}, fmt.Errorf("non-digit characters")
	}

	field := func(from, to int) int {
		if len(digits) < to {
			return 0
		}
		n, _ := strconv.Atoi(digits[from:to])
		return n
	}

	year := field(0, 4)
	doy := field(4, 7)
	hour := field(7, 9)
	minute := field(9, 11)
	second := field(11, 13)

	if doy < 1 || doy > 366 {
		return time.Time{}, fmt.Errorf("day of year %d out of range", doy)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("time of day out of range")
	}

	t := time.Date(year, time.January, 1, hour, minute, second, 0, time.UTC).AddDate(0, 0, doy-1)
	if t.Year() != year {
		return time.Time{}, fmt.Errorf("day of year %d does not exist in %d", doy, year)
	}
	return t, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
