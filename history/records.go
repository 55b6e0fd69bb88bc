package history

import (
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

const key = "string(450)"

func initial() migration.Record {
	return record(InitialID, "Initial",
		[]schema.Operation{
			schema.CreateTable{
				Name: "Players",
				Columns: []schema.Column{
					column("Id", key),
					nullable("Name", "text"),
					nullable("Platform", "text"),
					nullable("Avatar", "text"),
					nullable("Country", "text"),
					withDefault("Pp", "float", "0"),
					withDefault("Rank", "int", "0"),
					withDefault("CountryRank", "int", "0"),
					withDefault("Banned", "bool", "0"),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateTable{
				Name: "Songs",
				Columns: []schema.Column{
					column("Id", key),
					nullable("Hash", "text"),
					nullable("Name", "text"),
					nullable("Author", "text"),
					nullable("Mapper", "text"),
					withDefault("Bpm", "double", "0"),
					withDefault("Duration", "double", "0"),
					withDefault("UploadTime", "int", "0"),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateTable{
				Name: "Leaderboards",
				Columns: []schema.Column{
					column("Id", key),
					nullable("SongId", key),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateTable{
				Name: "Scores",
				Columns: []schema.Column{
					column("Id", "int"),
					nullable("PlayerId", key),
					nullable("LeaderboardId", key),
					column("BaseScore", "int"),
					column("ModifiedScore", "int"),
					column("Accuracy", "float"),
					column("Pp", "float"),
					column("Rank", "int"),
					nullable("Modifiers", "text"),
					nullable("Timeset", "text"),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateIndex{Table: "Leaderboards", Name: "IX_Leaderboards_SongId", Columns: []string{"SongId"}},
			schema.CreateIndex{Table: "Scores", Name: "IX_Scores_LeaderboardId", Columns: []string{"LeaderboardId"}},
			schema.CreateIndex{Table: "Scores", Name: "IX_Scores_PlayerId", Columns: []string{"PlayerId"}},
			schema.AddForeignKey{Table: "Leaderboards", Column: "SongId", PrincipalTable: "Songs", PrincipalColumn: "Id"},
			schema.AddForeignKey{Table: "Scores", Column: "LeaderboardId", PrincipalTable: "Leaderboards", PrincipalColumn: "Id"},
			schema.AddForeignKey{Table: "Scores", Column: "PlayerId", PrincipalTable: "Players", PrincipalColumn: "Id"},
		},
		[]schema.Operation{
			schema.DropTable{Name: "Scores"},
			schema.DropTable{Name: "Leaderboards"},
			schema.DropTable{Name: "Songs"},
			schema.DropTable{Name: "Players"},
		},
	)
}

func scoreStatistics() migration.Record {
	return record(20220512201514, "ScoreStatistics",
		[]schema.Operation{
			schema.CreateTable{
				Name: "ScoreStatistics",
				Columns: []schema.Column{
					column("Id", "int"),
					column("ScoreId", "int"),
					nullable("AccuracyTracker", "text"),
					nullable("HitTracker", "text"),
					nullable("WinTracker", "text"),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateIndex{Table: "ScoreStatistics", Name: "IX_ScoreStatistics_ScoreId", Columns: []string{"ScoreId"}, Unique: true},
			schema.AddForeignKey{Table: "ScoreStatistics", Column: "ScoreId", PrincipalTable: "Scores", PrincipalColumn: "Id"},
		},
		[]schema.Operation{
			schema.DropTable{Name: "ScoreStatistics"},
		},
	)
}

func clans() migration.Record {
	return record(20220601113012, "Clans",
		[]schema.Operation{
			schema.CreateTable{
				Name: "Clans",
				Columns: []schema.Column{
					column("Id", "int"),
					nullable("Name", "text"),
					nullable("Color", "text"),
					nullable("Tag", "string(10)"),
					nullable("LeaderId", key),
					withDefault("PlayersCount", "int", "0"),
					withDefault("Pp", "float", "0"),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateTable{
				Name: "ClanPlayer",
				Columns: []schema.Column{
					column("ClansId", "int"),
					column("PlayersId", key),
				},
				PrimaryKey: []string{"ClansId", "PlayersId"},
			},
			schema.CreateIndex{Table: "ClanPlayer", Name: "IX_ClanPlayer_PlayersId", Columns: []string{"PlayersId"}},
			schema.AddForeignKey{Table: "ClanPlayer", Column: "ClansId", PrincipalTable: "Clans", PrincipalColumn: "Id"},
			schema.AddForeignKey{Table: "ClanPlayer", Column: "PlayersId", PrincipalTable: "Players", PrincipalColumn: "Id"},
		},
		[]schema.Operation{
			schema.DropTable{Name: "ClanPlayer"},
			schema.DropTable{Name: "Clans"},
		},
	)
}

func scoreTimesetType() migration.Record {
	return record(20220710094530, "ScoreTimesetType",
		[]schema.Operation{
			schema.AlterColumn{
				Table: "Scores", Name: "Timeset", Type: "int", Default: schema.Default("0"),
				OldType: "text", OldNullable: true,
			},
		},
		[]schema.Operation{
			schema.AlterColumn{
				Table: "Scores", Name: "Timeset", Type: "text", Nullable: true,
				OldType: "int", OldDefault: schema.Default("0"),
			},
		},
	)
}

func playerPlatforms() migration.Record {
	return record(20220815161022, "PlayerPlatforms",
		[]schema.Operation{
			schema.RenameColumn{Table: "Players", OldName: "Platform", NewName: "Platforms"},
		},
		[]schema.Operation{
			schema.RenameColumn{Table: "Players", OldName: "Platforms", NewName: "Platform"},
		},
	)
}

func cronTimestamps() migration.Record {
	return record(20221003120501, "CronTimestamps",
		[]schema.Operation{
			schema.CreateTable{
				Name: "cronTimestamps",
				Columns: []schema.Column{
					column("Id", "int"),
					withDefault("HistoriesTimestamp", "int", "0"),
				},
				PrimaryKey: []string{"Id"},
			},
		},
		[]schema.Operation{
			schema.DropTable{Name: "cronTimestamps"},
		},
	)
}

func playerScoreStats() migration.Record {
	return record(20230105083015, "PlayerScoreStats",
		[]schema.Operation{
			schema.CreateTable{
				Name: "PlayerScoreStats",
				Columns: []schema.Column{
					column("Id", "int"),
					withDefault("TotalScore", "bigint", "0"),
					withDefault("AverageAccuracy", "float", "0"),
					withDefault("TotalPlayCount", "int", "0"),
					withDefault("TopPp", "float", "0"),
				},
				PrimaryKey: []string{"Id"},
			},
			schema.AddColumn{Table: "Players", Column: nullable("ScoreStatsId", "int")},
			schema.CreateIndex{Table: "Players", Name: "IX_Players_ScoreStatsId", Columns: []string{"ScoreStatsId"}},
			schema.AddForeignKey{Table: "Players", Column: "ScoreStatsId", PrincipalTable: "PlayerScoreStats", PrincipalColumn: "Id"},
		},
		[]schema.Operation{
			schema.DropForeignKey{Table: "Players", Name: "FK_Players_PlayerScoreStats_ScoreStatsId"},
			schema.DropIndex{Table: "Players", Name: "IX_Players_ScoreStatsId"},
			schema.DropColumn{Table: "Players", Name: "ScoreStatsId"},
			schema.DropTable{Name: "PlayerScoreStats"},
		},
	)
}

func clanPlayersTable() migration.Record {
	return record(20230302101500, "ClanPlayersTable",
		[]schema.Operation{
			schema.RenameTable{OldName: "ClanPlayer", NewName: "ClanPlayers"},
		},
		[]schema.Operation{
			schema.RenameTable{OldName: "ClanPlayers", NewName: "ClanPlayer"},
		},
	)
}

func leaderboardStars() migration.Record {
	return record(20230411090000, "LeaderboardStars",
		[]schema.Operation{
			schema.AddColumn{Table: "Leaderboards", Column: nullable("Stars", "float")},
			schema.AddColumn{Table: "Leaderboards", Column: withDefault("Ranked", "bool", "0")},
		},
		[]schema.Operation{
			schema.DropColumn{Table: "Leaderboards", Name: "Ranked"},
			schema.DropColumn{Table: "Leaderboards", Name: "Stars"},
		},
	)
}

// songLowerHashIndex is kept as authored: its index creation was disabled
// but its down operations still drop the index.
func songLowerHashIndex() migration.Record {
	return record(SongLowerHashIndexID, "SongLowerHashIndex",
		[]schema.Operation{},
		[]schema.Operation{
			schema.DropIndex{Table: "Songs", Name: "IX_Songs_Hash"},
		},
	)
}

func playerCountryLength() migration.Record {
	return record(20230720110000, "PlayerCountryLength",
		[]schema.Operation{
			schema.AlterColumn{
				Table: "Players", Name: "Country", Type: "string(10)", Nullable: true,
				OldType: "text", OldNullable: true,
			},
		},
		[]schema.Operation{
			schema.AlterColumn{
				Table: "Players", Name: "Country", Type: "text", Nullable: true,
				OldType: "string(10)", OldNullable: true,
			},
		},
	)
}

func dropLegacyModifiers() migration.Record {
	rec := record(DropLegacyModifiersID, "DropLegacyModifiers",
		[]schema.Operation{
			schema.DropColumn{Table: "Scores", Name: "Modifiers"},
		},
		nil,
	)
	rec.Irreversible = true
	return rec
}
