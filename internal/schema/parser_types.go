package schema

import (
	"regexp"
	"strings"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

var (
	createDomainNameRe = regexp.MustCompile(`(?i)CREATE\s+DOMAIN\s+"?([a-zA-Z_][a-zA-Z0-9_]*)"?`)
	createTypeNameRe   = regexp.MustCompile(`(?i)CREATE\s+TYPE\s+"?([a-zA-Z_][a-zA-Z0-9_]*)"?`)
)

// ParseType parses a CREATE TYPE / CREATE DOMAIN statement, classifying it
// as an enum, composite, or domain type.
func ParseType(sourceFile, content string) (*TypeDef, error) {
	sql := RemoveComments(content)
	upper := strings.ToUpper(sql)

	var kind TypeKind
	switch {
	case strings.Contains(upper, "AS ENUM"):
		kind = TypeEnum
	case strings.Contains(upper, "CREATE DOMAIN"):
		kind = TypeDomain
	case strings.Contains(upper, "CREATE TYPE") && strings.Contains(upper, " AS ("):
		kind = TypeComposite
	default:
		return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "unrecognized type definition in %s", sourceFile)
	}

	var re *regexp.Regexp
	if kind == TypeDomain {
		re = createDomainNameRe
	} else {
		re = createTypeNameRe
	}

	m := re.FindStringSubmatch(sql)
	if m == nil {
		return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "could not extract type name from %s", sourceFile)
	}

	return &TypeDef{
		Name:     strings.ToLower(m[1]),
		Kind:     kind,
		BodyText: strings.TrimSpace(content),
		Checksum: Checksum(content),
	}, nil
}
