package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// OptionDecoder pulls typed values out of a raw "[OPTIONS]" map and
// tracks which keys were consumed so leftovers can be rejected.
type OptionDecoder struct {
	raw  map[string]string
	used map[string]bool
	err  error
}

func NewOptionDecoder(raw map[string]string) *OptionDecoder {
	return &OptionDecoder{raw: raw, used: map[string]bool{}}
}

func (d *OptionDecoder) take(key string) (string, bool) {
	if d.err != nil {
		return "", false
	}
	d.used[key] = true
	value, ok := d.raw[key]
	return value, ok
}

func (d *OptionDecoder) fail(key string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("option %q: %w", key, err)
	}
}

func (d *OptionDecoder) Bool(key string) *bool {
	value, ok := d.take(key)
	if !ok {
		return nil
	}
	b, err := ParseBool(value)
	if err != nil {
		d.fail(key, err)
		return nil
	}
	return &b
}

func (d *OptionDecoder) Int(key string) *int64 {
	value, ok := d.take(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		d.fail(key, err)
		return nil
	}
	return &n
}

func (d *OptionDecoder) LogLevel(key string) *LogLevel {
	value, ok := d.take(key)
	if !ok {
		return nil
	}
	level, err := ParseLogLevel(value)
	if err != nil {
		d.fail(key, err)
		return nil
	}
	return &level
}

func (d *OptionDecoder) Verdict(key string) *Verdict {
	value, ok := d.take(key)
	if !ok {
		return nil
	}
	verdict, err := ParseVerdict(value)
	if err != nil {
		d.fail(key, err)
		return nil
	}
	return &verdict
}

func (d *OptionDecoder) RateLimit(key string) *LogRateLimit {
	value, ok := d.take(key)
	if !ok {
		return nil
	}
	limit, err := ParseLogRateLimit(value)
	if err != nil {
		d.fail(key, err)
		return nil
	}
	return &limit
}

// NameList decodes a comma-separated list of names.
func (d *OptionDecoder) NameList(key string) []string {
	value, ok := d.take(key)
	if !ok {
		return nil
	}
	var names []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, rest, ok := matchName(part); !ok || rest != "" {
			d.fail(key, fmt.Errorf("invalid name %q", part))
			return nil
		}
		names = append(names, part)
	}
	return names
}

// Finish reports the first decode error, or an error naming any option
// key that was never consumed.
func (d *OptionDecoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	for key := range d.raw {
		if !d.used[key] {
			return fmt.Errorf("unknown option %q", key)
		}
	}
	return nil
}
