package output

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bryanchriswhite/SharePicker/internal/catalog"
)

const (
	sheetPadding = 8
	labelHeight  = 13 // basicfont.Face7x13
)

var (
	sheetBackground = color.RGBA{24, 24, 24, 255}
	tileBackground  = color.RGBA{48, 48, 48, 255}
	labelColor      = color.RGBA{230, 230, 230, 255}
)

// Sheet lays out every entry as a labelled tile, columns tiles per row. Each
// tile is tileWidth x tileHeight plus a title line; windows without a
// thumbnail get an empty tile.
func Sheet(entries []catalog.Entry, tileWidth, tileHeight, columns int) *image.RGBA {
	if columns <= 0 {
		columns = 4
	}
	if len(entries) < columns {
		columns = max(1, len(entries))
	}
	rows := (len(entries) + columns - 1) / columns

	cellW := tileWidth + sheetPadding
	cellH := tileHeight + labelHeight + sheetPadding*2
	sheet := image.NewRGBA(image.Rect(0, 0, columns*cellW+sheetPadding, max(1, rows)*cellH+sheetPadding))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(sheetBackground), image.Point{}, draw.Src)

	for i, e := range entries {
		x := sheetPadding + (i%columns)*cellW
		y := sheetPadding + (i/columns)*cellH

		tile := image.Rect(x, y, x+tileWidth, y+tileHeight)
		draw.Draw(sheet, tile, image.NewUniform(tileBackground), image.Point{}, draw.Src)

		if e.HasThumbnail() {
			img := Fit(Image(e.Thumbnail), tileWidth, tileHeight)
			b := img.Bounds()
			at := image.Pt(x+(tileWidth-b.Dx())/2, y+(tileHeight-b.Dy())/2)
			draw.Draw(sheet, image.Rectangle{Min: at, Max: at.Add(b.Size())}, img, b.Min, draw.Over)
		}

		drawLabel(sheet, Label(e), x, y+tileHeight+sheetPadding, tileWidth)
	}

	return sheet
}

// Label is the text shown under a window's tile
func Label(e catalog.Entry) string {
	switch {
	case e.Title != "" && e.AppID != "":
		return e.Title + " (" + e.AppID + ")"
	case e.Title != "":
		return e.Title
	case e.AppID != "":
		return e.AppID
	default:
		return "untitled"
	}
}

func drawLabel(dst *image.RGBA, text string, x, y, width int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+labelHeight-2),
	}

	limit := fixed.I(width)
	if d.MeasureString(text) > limit {
		runes := []rune(text)
		for len(runes) > 0 && d.MeasureString(string(runes)+"...") > limit {
			runes = runes[:len(runes)-1]
		}
		text = string(runes) + "..."
	}
	d.DrawString(text)
}
