package token

// Display returns a human-friendly name used in syntax error messages
// ("expected expression, found end of file").
func (t Type) Display() string {
	switch t {
	case EOF:
		return "end of file"
	case EOL:
		return "end of line"
	case INDENTATION:
		return "indentation"
	case IDENTIFIER:
		return "identifier"
	case INT:
		return "integer"
	case FLOAT:
		return "float"
	case STRING:
		return "string"
	case BIG_STRING:
		return "triple-quoted string"
	case ERROR:
		return "invalid token"
	}
	if name, ok := names[t]; ok {
		return "'" + name + "'"
	}
	return t.String()
}
