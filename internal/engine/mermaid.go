package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Spectra/internal/domain"
)

// RenderMermaid возвращает топологию DAG в синтаксисе Mermaid flowchart.
//
// Источники рисуются кругами, builtin стадии — подпрограммами,
// tool стадии — прямоугольниками. Рёбра подписаны каналом, его
// дисциплиной и кардинальностью входа.
func RenderMermaid(d *DAG) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, src := range d.Catalog.Sources {
		sb.WriteString(fmt.Sprintf("    %s((\"%s\"))\n", sanitizeMermaidID(src.Name), src.Name))
	}

	for _, node := range d.Order {
		opener, closer := "[", "]"
		if node.Stage.Kind == domain.StageKindBuiltin {
			opener, closer = "[[", "]]"
		}
		label := node.ID
		if node.Stage.Tool != "" {
			label = fmt.Sprintf("%s <br/> %s", node.ID, node.Stage.Tool)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(node.ID), opener, label, closer))
	}

	for _, node := range d.Order {
		for _, in := range node.Stage.Inputs {
			ch := d.Channels[in.Channel]
			arrow := "-->"
			if in.Cardinality == domain.CardinalityBroadcast {
				arrow = "-.->"
			}
			edge := fmt.Sprintf("%s %s/%s", ch.Name, ch.Kind, in.Cardinality)
			if in.Flatten {
				edge += " flatten"
			}
			sb.WriteString(fmt.Sprintf("    %s %s|\"%s\"| %s\n",
				sanitizeMermaidID(ch.Producer), arrow, edge, sanitizeMermaidID(node.ID)))
		}
	}

	for _, ch := range d.FinalChannels() {
		id := "out_" + sanitizeMermaidID(ch.Name)
		sb.WriteString(fmt.Sprintf("    %s[/\"%s\"/]\n", id, ch.Name))
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(ch.Producer), id))
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
