package filter

// Blacklist signals non-functional, mining-worn or bait listings.
var Blacklist = []string{
	// Bulgarian defect terms
	"за части", "счупена", "не работи", "повредена", "дефект",
	"за ремонт", "артефакти", "черен екран", "не дава екран", "не стартира", "изгоря",
	"развален", "нетествана", "проблем", "не е тествана", "дефектна", "не функционира", "изправни",
	"няма сигнал", "без сигнал", "не дава сигнал",

	// mining
	"майнинг", "mining", "burnout", "mining rig", "копана", "ферма", "mining farm",
	"от ферма", "от майнинг", "за майнинг", "копаене",

	// English defect terms
	"broken", "damaged", "faulty", "defective", "not working", "for parts",
	"parts only", "as is", "repair", "artifacts", "black screen",
	"burnt", "dead", "fried", "doa", "no signal", "no display",

	// urgency, common in scams
	"срочно", "бързо", "спешно",
}

// ComputerKeywords mark complete systems and laptops rather than a card.
var ComputerKeywords = []string{
	"компютър", "лаптоп", "laptop", "gaming pc", "конфигурация", "настолен",
}

// WaterCoolingKeywords mark water blocks sold on their own.
var WaterCoolingKeywords = []string{
	"ekwb", "ek wb", "ek water", "water block", "waterblock",
	"воден блок", "водно охлаждане", "liquid cooling",
}
