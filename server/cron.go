package server

// Field name   | Mandatory? | Allowed values  | Allowed special characters
// ----------   | ---------- | --------------  | --------------------------
// Seconds      | Yes        | 0-59            | * / , -
// Minutes      | Yes        | 0-59            | * / , -
// Hours        | Yes        | 0-23            | * / , -
// Day of month | Yes        | 1-31            | * / , - ?
// Month        | Yes        | 1-12 or JAN-DEC | * / , -
// Day of week  | Yes        | 0-6 or SUN-SAT  | * / , - ?

// Jobs maps a schedule to the function run on it
type Jobs map[string]func()

const (
	//               SS MI HH  DOM MON DOW
	EveryTenSeconds = "*/10  *  *    *   *   *"
	EveryMinute     = "  0   *  *    *   *   *"
)
