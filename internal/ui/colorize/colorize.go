package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Enabled reports whether colorized output is allowed. REDYNE_NO_COLOR
// disables it globally; the CLI also sets that variable when output is
// piped.
func Enabled() bool {
	return os.Getenv("REDYNE_NO_COLOR") == ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	// Try lexers in order of preference (ARM assembly first)
	candidates := []string{"armasm", "gas", "GAS", "Gas", "nasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getListingStyle returns the listing style with fallbacks
func getListingStyle() *chroma.Style {
	// Try our custom style first, then fallbacks
	candidates := []string{"redyne-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	// Try high-color first, then fallback
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

func colorizeWith(lexer chroma.Lexer, code string) string {
	if !Enabled() || lexer == nil {
		return code
	}

	// Make sure our custom style is registered
	_ = RedyneDark

	style := getListingStyle()
	formatter := getTerminalFormatter()

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// Assembly applies syntax highlighting to a disassembly listing.
func Assembly(code string) string {
	return colorizeWith(getAssemblyLexer(), code)
}

// Pseudocode applies C syntax highlighting to generated pseudocode.
func Pseudocode(code string) string {
	return colorizeWith(lexers.Get("c"), code)
}

// Header applies Objective-C highlighting to generated header text.
func Header(code string) string {
	lexer := lexers.Get("objective-c")
	if lexer == nil {
		lexer = lexers.Get("c")
	}
	return colorizeWith(lexer, code)
}

// InstructionLine colorizes a single "address  mnemonic operands" line,
// rendering the address in gray and the rest through the assembly lexer.
func InstructionLine(line string) string {
	if !Enabled() {
		return line
	}

	parts := strings.SplitN(line, " ", 2)
	if len(parts) < 2 || !isHexString(parts[0]) {
		return colorizeFullLine(line)
	}

	addr := parts[0]
	remaining := parts[1]

	// Color address in gray (79, 79, 79)
	addrColored := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", addr)
	return fmt.Sprintf("%s %s", addrColored, colorizeFullLine(remaining))
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	s = strings.TrimPrefix(s, "0x")
	for i := 0; i < len(s); i++ {
		if !isHexChar(s[i]) {
			return false
		}
	}
	return true
}

// isHexChar checks if a character is a hexadecimal digit
func isHexChar(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string) string {
	// Use nasm lexer which handles comments well
	lexer := lexers.Get("nasm")
	if lexer == nil {
		lexer = lexers.Get("armasm")
		if lexer == nil {
			return line
		}
	}
	return colorizeWith(lexer, line)
}
