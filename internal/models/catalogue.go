package models

// ProductModels is the catalogue offered to operators. Registration does not
// validate against it; model is free text in the ledger.
var ProductModels = []string{
	"MGH100 RCU",
	"MGH100 BL7",
	"IDB PLOCK",
	"IDB MAIN",
	"IDB IPTS",
	"POWER PACK",
	"MGH MOCI",
	"MGH100 ESC",
	"FCM 30W",
	"MRR35",
	"IAMM2",
	"FRHC",
}
