package cryocare

const PluginVersion = "3.0.0"

type Reference struct {
	Key   string
	Title string
	DOI   string
}

var References = []Reference{
	{
		Key:   "buchholz2019cryo",
		Title: "Cryo-CARE: content-aware image restoration for cryo-transmission electron microscopy data. ISBI 2019, 502-506",
		DOI:   "10.1109/ISBI.2019.8759519",
	},
	{
		Key:   "buchholz2019content",
		Title: "Content-aware image restoration for electron microscopy. Methods in Cell Biology 152 (2019), 277-289",
		DOI:   "10.1016/bs.mcb.2019.05.001",
	},
}
