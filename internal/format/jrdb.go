package format

// Field constructors. Fields are nullable unless marked otherwise.

func text(name string, off, width int) Field {
	return Field{Name: name, Offset: off, Width: width, Type: TypeString, Nullable: true}
}

func integer(name string, off, width int) Field {
	return Field{Name: name, Offset: off, Width: width, Type: TypeInteger, Nullable: true}
}

func decimal(name string, off, width, scale int) Field {
	return Field{Name: name, Offset: off, Width: width, Type: TypeDecimal, Scale: scale, Nullable: true}
}

func date(name string, off int) Field {
	return Field{Name: name, Offset: off, Width: len(DateLayoutLong), Type: TypeDate, Layout: DateLayoutLong, Nullable: true}
}

func enum(name string, off, width int, codes map[string]string) Field {
	return Field{Name: name, Offset: off, Width: width, Type: TypeEnum, Codes: codes, Nullable: true}
}

func (f Field) required() Field {
	f.Nullable = false
	return f
}

func (f Field) key() Field {
	f.Nullable = false
	f.Key = true
	return f
}

func (f Field) component() Field {
	f.Component = true
	return f
}

var (
	venueCodes = map[string]string{
		"01": "sapporo", "02": "hakodate", "03": "fukushima", "04": "niigata", "05": "tokyo",
		"06": "nakayama", "07": "chukyo", "08": "kyoto", "09": "hanshin", "10": "kokura",
	}
	courseTypeCodes = map[string]string{"1": "turf", "2": "dirt", "3": "obstacle"}
	directionCodes  = map[string]string{"1": "right", "2": "left", "3": "straight", "9": "other"}
	innerOuterCodes = map[string]string{"1": "inner", "2": "outer", "3": "straight-dirt", "9": "other"}
	weightCodes     = map[string]string{"1": "handicap", "2": "allowance", "3": "age", "4": "set"}
	gradeCodes      = map[string]string{
		"1": "G1", "2": "G2", "3": "G3", "4": "graded", "5": "listed", "6": "open",
	}
	courseVariantCodes = map[string]string{"1": "A", "2": "A1", "3": "A2", "4": "B", "5": "C", "6": "D"}
	meetingKindCodes   = map[string]string{"1": "kanto", "2": "kansai", "3": "local"}
	dataKindCodes      = map[string]string{"1": "base", "2": "pre-day", "3": "final"}
	paceTypeCodes      = map[string]string{"1": "front", "2": "stalker", "3": "closer", "4": "versatile"}
	aptitudeCodes      = map[string]string{"1": "sprint", "2": "mile", "3": "middle", "5": "mile-middle", "6": "long"}
	trendCodes         = map[string]string{"1": "strong", "2": "improving", "3": "flat", "4": "declining", "5": "poor"}
	weatherCodes       = map[string]string{
		"1": "sunny", "2": "cloudy", "3": "light-rain", "4": "rain", "5": "light-snow", "6": "snow",
	}
	trackConditionCodes = map[string]string{
		"10": "good", "11": "good-fast", "12": "good-slow",
		"20": "slightly-heavy", "21": "slightly-heavy-fast", "22": "slightly-heavy-slow",
		"30": "heavy", "31": "heavy-fast", "32": "heavy-slow",
		"40": "bad", "41": "bad-fast", "42": "bad-slow",
	}
	abnormalCodes = map[string]string{
		"0": "none", "1": "scratched", "2": "excluded", "3": "did-not-finish",
		"4": "disqualified", "5": "demoted", "6": "remounted",
	}
)

// raceKey decomposes the 8-byte race key: venue(2) year(2) round(1) day(1) race(2).
func raceKey() []Field {
	return []Field{
		text("race_id", 0, 8).key(),
		enum("venue_code", 0, 2, venueCodes).required().component(),
		integer("meeting_round", 4, 1).component(),
		text("meeting_day", 5, 1).component(),
		integer("race_number", 6, 2).required().component(),
	}
}

func programFields() []Field {
	return append(raceKey(),
		date("race_date", 8).required(),
		text("start_time", 16, 4),
		integer("distance", 20, 4).required(),
		enum("course_type", 24, 1, courseTypeCodes).required(),
		enum("course_direction", 25, 1, directionCodes),
		enum("course_inner_outer", 26, 1, innerOuterCodes),
		text("age_condition", 27, 2),
		text("race_condition", 29, 2),
		text("race_symbol", 31, 3),
		enum("weight_condition", 34, 1, weightCodes),
		enum("grade", 35, 1, gradeCodes),
		text("race_name", 36, 50),
		integer("num_horses", 86, 2).required(),
		enum("course_variant", 88, 1, courseVariantCodes),
		enum("meeting_kind", 89, 1, meetingKindCodes),
		text("race_name_short", 90, 8),
		text("race_name_9", 98, 18),
		enum("data_kind", 116, 1, dataKindCodes),
		integer("prize_1st", 117, 5),
		integer("prize_2nd", 122, 5),
		integer("prize_3rd", 127, 5),
		integer("prize_4th", 132, 5),
		integer("prize_5th", 137, 5),
		integer("entry_prize_1st", 142, 5),
		integer("entry_prize_2nd", 147, 5),
		text("ticket_flags", 152, 16),
		text("win5_flag", 168, 1),
	)
}

func horseFields() []Field {
	return []Field{
		text("race_id", 0, 8).key(),
		enum("venue_code", 0, 2, venueCodes).required().component(),
		integer("race_number", 6, 2).required().component(),
		integer("horse_number", 8, 2).required(),
		text("horse_id", 10, 8).key(),
		text("horse_name", 18, 36),
		decimal("idm", 54, 5, 1),
		decimal("jockey_index", 59, 5, 1),
		decimal("info_index", 64, 5, 1),
		decimal("total_index", 69, 5, 1),
		enum("pace_type", 74, 1, paceTypeCodes),
		enum("distance_aptitude", 75, 1, aptitudeCodes),
		enum("trend", 76, 1, trendCodes),
		integer("rotation", 77, 3),
		decimal("odds", 101, 5, 1),
		integer("popularity", 106, 2),
		integer("bracket_number", 115, 1),
		decimal("weight_carried", 137, 3, 1),
		text("jockey_id", 165, 5),
		text("jockey_name", 170, 12),
		text("trainer_id", 182, 5),
		text("trainer_name", 187, 12),
	}
}

func resultFields() []Field {
	return []Field{
		text("race_id", 0, 8).key(),
		enum("venue_code", 0, 2, venueCodes).required().component(),
		integer("race_number", 6, 2).required().component(),
		integer("horse_number", 8, 2).required(),
		text("horse_id", 10, 8).key(),
		date("race_date", 18).required(),
		text("horse_name", 26, 36),
		integer("distance", 62, 4).required(),
		enum("course_type", 66, 1, courseTypeCodes),
		enum("track_condition", 67, 2, trackConditionCodes),
		enum("weather", 69, 1, weatherCodes),
		integer("num_horses", 70, 2).required(),
		integer("finish_position", 72, 2),
		enum("abnormal_code", 74, 1, abnormalCodes),
		text("finish_time", 75, 4),
		decimal("weight_carried", 79, 3, 1),
		text("jockey_name", 82, 12),
		text("trainer_name", 94, 12),
		decimal("odds", 106, 6, 1),
		integer("popularity", 112, 2),
		decimal("last_3f", 114, 3, 1),
		integer("horse_weight", 117, 3),
		integer("horse_weight_diff", 120, 3),
	}
}

func meetingFields() []Field {
	return []Field{
		text("meeting_id", 0, 6).key(),
		enum("venue_code", 0, 2, venueCodes).required().component(),
		date("meeting_date", 6).required(),
		enum("meeting_kind", 14, 1, meetingKindCodes),
		text("weekday", 15, 2),
		text("venue_name", 17, 4),
		enum("weather", 21, 1, weatherCodes),
		enum("turf_condition", 22, 2, trackConditionCodes),
		enum("turf_inner_outer", 24, 1, innerOuterCodes),
		enum("dirt_condition", 25, 2, trackConditionCodes),
		decimal("turf_cushion", 27, 4, 1),
	}
}

func variants(family Family, table, description string, fields func() []Field, codes ...string) []*Schema {
	out := make([]*Schema, 0, len(codes))
	for _, code := range codes {
		out = append(out, &Schema{
			Code:        code,
			Family:      family,
			Dataset:     "raw",
			Table:       table,
			Description: description,
			Fields:      fields(),
		})
	}
	return out
}

func jrdbSchemas() []*Schema {
	var all []*Schema
	all = append(all, variants(FamilyProgram, "race_info", "race program", programFields, "BAA", "BAB", "BAC")...)
	all = append(all, variants(FamilyHorse, "horse_results", "runner data", horseFields, "KYF", "KYG", "KYH")...)
	all = append(all, variants(FamilyResult, "race_results", "race results", resultFields, "SEC")...)
	all = append(all, variants(FamilyMeeting, "meeting_info", "meeting data", meetingFields, "KAA", "KAB")...)
	return all
}
