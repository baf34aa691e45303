package auth

import "strings"

// UnknownUserID is the id assigned when the payload carries no usable id.
const UnknownUserID = "unknown"

// Normalize converts a backend user payload into the canonical shape.
// It never panics and is idempotent: Normalize(Normalize(x).Raw()) equals Normalize(x).
//
// Fallback order:
//   - id:    id -> _id -> "unknown"
//   - name:  profile.firstName + profile.lastName -> name -> nil
//   - image: profile.avatar -> image -> nil
//   - role:  ADMIN only if role or roles[0] is exactly "ADMIN"
func Normalize(raw RawUser) NormalizedUser {
	profile, _ := raw["profile"].(map[string]any)

	return NormalizedUser{
		ID:    firstString(raw["id"], raw["_id"], UnknownUserID),
		Email: stringField(raw, "email"),
		Name:  normalizeName(profile, raw),
		Image: firstStringPtr(profile["avatar"], raw["image"]),
		Role:  normalizeRole(raw),
	}
}

// IsVerified reports the payload's isVerified flag. known is false when the
// field is absent or not a boolean.
func IsVerified(raw RawUser) (verified, known bool) {
	v, ok := raw["isVerified"].(bool)
	return v, ok
}

// UnwrapUser returns the user object from common response envelopes
// ({"data": {...}}, {"user": {...}}, {"data": {"user": {...}}}) or raw itself.
func UnwrapUser(raw RawUser) RawUser {
	for _, key := range []string{"data", "user"} {
		inner, ok := raw[key].(map[string]any)
		if !ok {
			continue
		}
		if nested, ok := inner["user"].(map[string]any); ok {
			return RawUser(nested)
		}
		return RawUser(inner)
	}
	return raw
}

func normalizeName(profile map[string]any, raw RawUser) *string {
	first := strings.TrimSpace(stringField(profile, "firstName"))
	last := strings.TrimSpace(stringField(profile, "lastName"))
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return &full
	}
	return firstStringPtr(raw["name"])
}

func normalizeRole(raw RawUser) Role {
	if role, ok := raw["role"].(string); ok && role == string(RoleAdmin) {
		return RoleAdmin
	}
	switch roles := raw["roles"].(type) {
	case []any:
		if len(roles) > 0 {
			if first, ok := roles[0].(string); ok && first == string(RoleAdmin) {
				return RoleAdmin
			}
		}
	case []string:
		if len(roles) > 0 && roles[0] == string(RoleAdmin) {
			return RoleAdmin
		}
	}
	return RoleUser
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// firstString returns the first non-empty string among vals; the last
// value is used as the fallback when nothing matches.
func firstString(vals ...any) string {
	for _, v := range vals[:len(vals)-1] {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	s, _ := vals[len(vals)-1].(string)
	return s
}

func firstStringPtr(vals ...any) *string {
	for _, v := range vals {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return &s
		}
	}
	return nil
}
