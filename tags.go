package woff2

// Known table tags of the short directory format, indexed by the low six bits
// of the directory entry's flag byte. Index 63 means an explicit tag follows.
var knownTableTags = [63]string{
	"cmap", "head", "hhea", "hmtx",
	"maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca",
	"prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern",
	"LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS",
	"GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL",
	"SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar",
	"fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar",
	"mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat",
	"Gloc", "Feat", "Sill",
}

var (
	tagHead = stringToUint32("head")
	tagGlyf = stringToUint32("glyf")
	tagLoca = stringToUint32("loca")
	tagCFF  = stringToUint32("CFF ")
	tagDSIG = stringToUint32("DSIG")
	tagTtcf = stringToUint32("ttcf")
)

// transformedTag is the pseudo-tag under which a table's transformed twin is
// stored in the font while encoding.
func transformedTag(tag uint32) uint32 {
	return tag ^ 0x80808080
}

func isTransformedTag(tag uint32) bool {
	return tag&0x80808080 != 0
}

func knownTableIndex(tag uint32) int {
	for i := 0; i < 63; i++ {
		if tag == stringToUint32(knownTableTags[i]) {
			return i
		}
	}
	return 63
}
