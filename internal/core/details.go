package core

import (
	"fmt"
	"reflect"
	"strings"
)

// changedFields lists the json names of top-level fields that differ between
// two values of the same struct type. Embedded structs are skipped, which
// drops identifiers and timestamps.
func changedFields(before, after any) []string {
	bv, av := reflect.ValueOf(before), reflect.ValueOf(after)
	if bv.Kind() != reflect.Struct || bv.Type() != av.Type() {
		return nil
	}
	var out []string
	t := bv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		if reflect.DeepEqual(bv.Field(i).Interface(), av.Field(i).Interface()) {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = f.Name
		}
		out = append(out, name)
	}
	return out
}

func updateDetails(label, name string, before, after any) string {
	fields := changedFields(before, after)
	if len(fields) == 0 {
		return fmt.Sprintf("updated %s %q (no changes)", label, name)
	}
	return fmt.Sprintf("updated %s %q: %s", label, name, strings.Join(fields, ", "))
}
