package puzzle

// DefaultSetID is the set rooms fall back to when a requested set is
// unknown.
const DefaultSetID = "classic-v1"

// Record is one pre-enumerated puzzle: an 81-char clue string ('.' for
// empty) and its 81-char solution.
type Record struct {
	Clues    string
	Solution string
}

// Sets are compiled in rather than fetched: both participants and a
// reconnecting client must rematerialize an identical board from nothing
// but a set ID, an index and the reveal positions.
var sets = map[string][]Record{
	"classic-v1": {
		{
			Clues:    ".3.7.92..71..5.4..9.5..4.7.2..1.....19..8..4..769.3.8.4.9.3.8.7.8..2..9.32.89.6..",
			Solution: "834769251712358469965214378248176935193582746576943182459631827681427593327895614",
		},
		{
			Clues:    ".6..9.......16.8.3..32.8....8...1.5....9..3.4...7.3.1.63.5491828...324.5......6..",
			Solution: "168395247572164893943278561389421756715986324426753918637549182891632475254817639",
		},
		{
			Clues:    ".8......12..38...5....1..2.....61..3.76..4.....452.7...6.4.9....97.5..8.13.6.8.9.",
			Solution: "789245631241386975653917428925761843376894152814523769568439217497152386132678594",
		},
		{
			Clues:    "...2..97..94.6..1315..4.....15.8.3..43.5.96.187..3...55....6.3.7..3..1...6...12..",
			Solution: "683215974294867513157943862915684327432579681876132495521496738749328156368751249",
		},
		{
			Clues:    ".5.3..2.7.7.....9....98.546.97.2.3..564.9.7.8..247..5...68..9.....2.....123...86.",
			Solution: "659314287478562193231987546897625314564193728312478659746851932985236471123749865",
		},
		{
			Clues:    "54.2.....8......749.617.3.82.87.963.......1..6...1...74.....5..7..9.184319...3.6.",
			Solution: "547238916831596274926174358218749635374865129659312487483627591762951843195483762",
		},
		{
			Clues:    "52..4.....81.6.49.7..8.......938.7.....25....16..........432.56432.1.9.8....9.24.",
			Solution: "526149387381567492794823561259386714847251639163974825978432156432615978615798243",
		},
		{
			Clues:    "6..47....5....368912..8....7........8.....5.29..2..86.....379...6..9134..19.4....",
			Solution: "698475213574123689123986475752368194846719532931254867485637921267591348319842756",
		},
		{
			Clues:    "9....6..36..2.3.....2.1945..973.584....97..3.......5....6194...48.6371..7.98.2..4",
			Solution: "974586213651243978832719456297365841548971632163428597326194785485637129719852364",
		},
		{
			Clues:    "185.34.2..2..1..5.9...6..1.3947....5..6.5....51...8.9..3..........27..3.75.48.1..",
			Solution: "185934726623817459947562813394721685876359241512648397238196574461275938759483162",
		},
		{
			Clues:    "5.832..4.1..7.95....2....8.7.5..8.69..3.5.4..6...913.7...9.51.23..1..........36..",
			Solution: "578326941146789523932514786715438269293657418684291357867945132359162874421873695",
		},
		{
			Clues:    "..249..71.......23.....25.9..67..9..84..3..1..9....4.85.7.8.3..9...7...4....561..",
			Solution: "652493871489517623371862549126748935845639712793125468517284396968371254234956187",
		},
	},
}

// SetIDs returns the known puzzle-set identifiers.
func SetIDs() []string {
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	return ids
}

// SetSize returns the number of puzzles in a set, or 0 if unknown.
func SetSize(setID string) int {
	return len(sets[setID])
}

// SetRecords returns the raw records of a set, nil if unknown.
func SetRecords(setID string) []Record {
	return sets[setID]
}
