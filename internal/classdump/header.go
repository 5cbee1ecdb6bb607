package classdump

import "strings"

// GenerateHeader renders the whole result as a single Objective-C header
// file. Heuristic placeholder entries are annotated so nobody mistakes them
// for discovered declarations.
func GenerateHeader(res *Result, binaryPath string) string {
	var sb strings.Builder
	sb.WriteString("//\n")
	sb.WriteString("//  Generated by ReDyned Class Dump\n")
	sb.WriteString("//  Binary: ")
	sb.WriteString(binaryPath)
	sb.WriteString("\n//\n\n")
	sb.WriteString("#import <Foundation/Foundation.h>\n\n")

	if res.Heuristic {
		sb.WriteString("// No structural Objective-C markers were found. The entries below are\n")
		sb.WriteString("// low-confidence placeholders inferred from selector strings only.\n\n")
	}

	for _, c := range res.Classes {
		writeClassHeader(&sb, c)
	}
	for _, c := range res.Categories {
		writeCategoryHeader(&sb, c)
	}
	for _, p := range res.Protocols {
		writeProtocolHeader(&sb, p)
	}
	return sb.String()
}

func writeClassHeader(sb *strings.Builder, c *Class) {
	sb.WriteString("@interface ")
	sb.WriteString(c.Name)
	if c.Superclass != "" {
		sb.WriteString(" : ")
		sb.WriteString(c.Superclass)
	}
	if len(c.Protocols) > 0 {
		sb.WriteString(" <")
		sb.WriteString(strings.Join(c.Protocols, ", "))
		sb.WriteString(">")
	}
	sb.WriteString("\n")

	if len(c.Ivars) > 0 {
		sb.WriteString("{\n")
		for _, iv := range c.Ivars {
			sb.WriteString("    id ")
			sb.WriteString(iv)
			sb.WriteString(";\n")
		}
		sb.WriteString("}\n")
	}
	for _, p := range c.Properties {
		sb.WriteString("@property (nonatomic, strong) id ")
		sb.WriteString(p)
		sb.WriteString(";\n")
	}
	for _, m := range c.InstanceMethods {
		sb.WriteString("- (void)")
		sb.WriteString(m)
		sb.WriteString(";\n")
	}
	for _, m := range c.ClassMethods {
		sb.WriteString("+ (void)")
		sb.WriteString(m)
		sb.WriteString(";\n")
	}
	sb.WriteString("@end\n\n")
}

func writeCategoryHeader(sb *strings.Builder, c *Category) {
	sb.WriteString("@interface ")
	sb.WriteString(c.Class)
	sb.WriteString(" (")
	sb.WriteString(c.Name)
	sb.WriteString(")\n")
	for _, p := range c.Properties {
		sb.WriteString("@property (nonatomic, strong) id ")
		sb.WriteString(p)
		sb.WriteString(";\n")
	}
	for _, m := range c.InstanceMethods {
		sb.WriteString("- (void)")
		sb.WriteString(m)
		sb.WriteString(";\n")
	}
	for _, m := range c.ClassMethods {
		sb.WriteString("+ (void)")
		sb.WriteString(m)
		sb.WriteString(";\n")
	}
	sb.WriteString("@end\n\n")
}

func writeProtocolHeader(sb *strings.Builder, p *Protocol) {
	sb.WriteString("@protocol ")
	sb.WriteString(p.Name)
	sb.WriteString("\n")
	for _, m := range p.Methods {
		sb.WriteString("- (void)")
		sb.WriteString(m)
		sb.WriteString(";\n")
	}
	sb.WriteString("@end\n\n")
}
