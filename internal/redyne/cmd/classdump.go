package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/classdump"
	"github.com/IntervalMedia/ReDyned/internal/ui/colorize"
)

type classOutput struct {
	Name            string   `json:"name"`
	Superclass      string   `json:"superclass,omitempty"`
	InstanceMethods []string `json:"instance_methods,omitempty"`
	ClassMethods    []string `json:"class_methods,omitempty"`
	Ivars           []string `json:"ivars,omitempty"`
	IsSwift         bool     `json:"is_swift,omitempty"`
	IsMetaClass     bool     `json:"is_meta_class,omitempty"`
	Source          string   `json:"source"`
	Confidence      float64  `json:"confidence"`
}

type categoryOutput struct {
	Name            string   `json:"name"`
	Class           string   `json:"class"`
	InstanceMethods []string `json:"instance_methods,omitempty"`
	ClassMethods    []string `json:"class_methods,omitempty"`
	Source          string   `json:"source"`
	Confidence      float64  `json:"confidence"`
}

type protocolOutput struct {
	Name       string   `json:"name"`
	Methods    []string `json:"methods,omitempty"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
}

type classdumpOutput struct {
	Classes    []classOutput    `json:"classes"`
	Categories []categoryOutput `json:"categories"`
	Protocols  []protocolOutput `json:"protocols"`
	Heuristic  bool             `json:"heuristic"`
}

var classdumpCmd = &cobra.Command{
	Use:   "classdump [file]",
	Short: "Reconstruct Objective-C classes, categories, and protocols",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		res := classdump.AnalyzeImage(img)

		if header, _ := cmd.Flags().GetBool("header"); header {
			text := classdump.GenerateHeader(res, img.Path)
			fmt.Print(colorize.Header(text))
			return nil
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(classdumpJSON(res))
		}

		for _, c := range res.Classes {
			tag := ""
			if c.Source == classdump.SourceHeuristic {
				tag = "  [heuristic placeholder]"
			}
			fmt.Printf("class %s : %s (%.2f)%s\n", c.Name, c.Superclass, c.Confidence, tag)
			for _, m := range c.InstanceMethods {
				fmt.Printf("  -%s\n", m)
			}
			for _, m := range c.ClassMethods {
				fmt.Printf("  +%s\n", m)
			}
			if len(c.Ivars) > 0 {
				fmt.Printf("  ivars: %s\n", strings.Join(c.Ivars, ", "))
			}
		}
		for _, c := range res.Categories {
			fmt.Printf("category %s (%s) (%.2f)\n", c.Class, c.Name, c.Confidence)
		}
		for _, p := range res.Protocols {
			fmt.Printf("protocol %s (%.2f)\n", p.Name, p.Confidence)
		}
		return nil
	},
}

func classdumpJSON(res *classdump.Result) classdumpOutput {
	out := classdumpOutput{Heuristic: res.Heuristic}
	for _, c := range res.Classes {
		out.Classes = append(out.Classes, classOutput{
			Name:            c.Name,
			Superclass:      c.Superclass,
			InstanceMethods: c.InstanceMethods,
			ClassMethods:    c.ClassMethods,
			Ivars:           c.Ivars,
			IsSwift:         c.IsSwift,
			IsMetaClass:     c.IsMetaClass,
			Source:          c.Source.String(),
			Confidence:      c.Confidence,
		})
	}
	for _, c := range res.Categories {
		out.Categories = append(out.Categories, categoryOutput{
			Name:            c.Name,
			Class:           c.Class,
			InstanceMethods: c.InstanceMethods,
			ClassMethods:    c.ClassMethods,
			Source:          c.Source.String(),
			Confidence:      c.Confidence,
		})
	}
	for _, p := range res.Protocols {
		out.Protocols = append(out.Protocols, protocolOutput{
			Name:       p.Name,
			Methods:    p.Methods,
			Source:     p.Source.String(),
			Confidence: p.Confidence,
		})
	}
	return out
}

func init() {
	classdumpCmd.Flags().Bool("header", false, "Emit a generated Objective-C header")
	rootCmd.AddCommand(classdumpCmd)
}
