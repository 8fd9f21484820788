package schema

import (
	"regexp"
	"strings"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

var (
	createFunctionRe = regexp.MustCompile(`(?is)CREATE\s+(?:OR\s+REPLACE\s+)?FUNCTION\s+"?(\w+)"?\s*\(([^)]*)\)\s*RETURNS\s+((?:TABLE\s*\([^)]+\)|\S+))`)
	paramDefaultRe   = regexp.MustCompile(`(?i)\s+DEFAULT\s+.*$`)
)

// ParseFunction parses a CREATE [OR REPLACE] FUNCTION statement into a
// Function with its signature (name + ordered parameter types).
func ParseFunction(sourceFile, content string) (*Function, error) {
	sql := RemoveComments(content)

	m := createFunctionRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "no CREATE FUNCTION statement found in %s", sourceFile)
	}

	name := strings.ToLower(m[1])
	paramTypes := parseParamTypes(m[2])

	return &Function{
		Signature: FunctionSignature{Name: name, ParamTypes: paramTypes},
		BodyText:  strings.TrimSpace(content),
		Checksum:  Checksum(content),
	}, nil
}

func parseParamTypes(paramsStr string) []string {
	if strings.TrimSpace(paramsStr) == "" {
		return nil
	}

	var types []string
	for _, part := range splitTopLevel(paramsStr, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = paramDefaultRe.ReplaceAllString(part, "")
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}

		var dataType string
		switch {
		case len(fields) == 1:
			dataType = fields[0]
		case isParamMode(fields[0]) && len(fields) >= 3:
			dataType = strings.Join(fields[2:], " ")
		case isParamMode(fields[0]):
			dataType = strings.Join(fields[1:], " ")
		default:
			// name type
			dataType = strings.Join(fields[1:], " ")
		}
		types = append(types, strings.ToUpper(dataType))
	}
	return types
}

func isParamMode(word string) bool {
	switch strings.ToUpper(word) {
	case "IN", "OUT", "INOUT", "VARIADIC":
		return true
	default:
		return false
	}
}
